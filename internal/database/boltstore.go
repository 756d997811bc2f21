// internal/database/boltstore.go - BoltDB implementation
package database

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var (
	SitesBucket        = []byte("sites")
	SiteKeysBucket     = []byte("site_keys")
	HostsBucket        = []byte("hosts")
	MonitorsBucket     = []byte("monitors")
	ApplicationsBucket = []byte("applications")
	PreferencesBucket  = []byte("preferences")
)

var allBuckets = [][]byte{
	SitesBucket, SiteKeysBucket, HostsBucket, MonitorsBucket, ApplicationsBucket, PreferencesBucket,
}

// BoltStore keeps one bucket per entity with JSON values keyed by the
// big-endian id. Ids come from the bucket sequence, which is advanced inside
// the same write transaction as the insert.
type BoltStore struct {
	mu   sync.RWMutex // guards db across compaction
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (*BoltStore, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := openBolt(path)
	if err != nil {
		return nil, err
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func openBolt(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}
	return db, nil
}

func (s *BoltStore) initBuckets() error {
	return s.update(func(tx *bbolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) view(fn func(tx *bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.View(fn)
}

func (s *BoltStore) update(fn func(tx *bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Update(fn)
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Site operations

func (s *BoltStore) GetSites(ctx context.Context) ([]Site, error) {
	var sites []Site

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(SitesBucket).ForEach(func(k, v []byte) error {
			var site Site
			if err := json.Unmarshal(v, &site); err != nil {
				return fmt.Errorf("failed to unmarshal site %d: %w", btoi(k), err)
			}
			sites = append(sites, site)
			return nil
		})
	})

	return sites, err
}

func (s *BoltStore) GetSitePage(ctx context.Context, limit, offset int) ([]Site, int, error) {
	var (
		sites []Site
		total int
	)

	err := s.view(func(tx *bbolt.Tx) error {
		c := tx.Bucket(SitesBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			index := total
			total++
			if index < offset || (limit > 0 && len(sites) >= limit) {
				continue
			}
			var site Site
			if err := json.Unmarshal(v, &site); err != nil {
				return fmt.Errorf("failed to unmarshal site %d: %w", btoi(k), err)
			}
			sites = append(sites, site)
		}
		return nil
	})

	return sites, total, err
}

func (s *BoltStore) GetSite(ctx context.Context, id int64) (*Site, error) {
	var site Site

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(SitesBucket), id, &site)
		if err != nil {
			return err
		}
		if !found {
			return notFound("site", id)
		}
		return resolveSite(tx, &site)
	})

	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *BoltStore) GetSiteByCountryName(ctx context.Context, countryCode, endPoint string) (*Site, error) {
	var site Site

	err := s.view(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(SiteKeysBucket).Get(siteKey(countryCode, endPoint))
		if idx == nil {
			return notFound("site", countryCode+"/"+endPoint)
		}
		found, err := getJSON(tx.Bucket(SitesBucket), btoi(idx), &site)
		if err != nil {
			return err
		}
		if !found {
			return notFound("site", countryCode+"/"+endPoint)
		}
		return resolveSite(tx, &site)
	})

	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *BoltStore) CreateSite(ctx context.Context, site *Site) error {
	return s.update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(SiteKeysBucket)
		key := siteKey(site.CountryCode, site.EndPoint)
		if keys.Get(key) != nil {
			return fmt.Errorf("site %s/%s already exists: %w", site.CountryCode, site.EndPoint, ErrConflict)
		}
		if err := checkReferences(tx, site); err != nil {
			return err
		}

		b := tx.Bucket(SitesBucket)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		site.ID = id
		if site.CreatedDate.IsZero() {
			site.CreatedDate = time.Now()
		}
		site.HostIDs = normalizeIDs(site.HostIDs)
		site.MonitorIDs = normalizeIDs(site.MonitorIDs)

		if err := putSite(b, site); err != nil {
			return err
		}
		return keys.Put(key, itob(site.ID))
	})
}

func (s *BoltStore) UpdateSite(ctx context.Context, site *Site) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(SitesBucket)
		keys := tx.Bucket(SiteKeysBucket)

		var existing Site
		found, err := getJSON(b, site.ID, &existing)
		if err != nil {
			return err
		}
		if !found {
			return notFound("site", site.ID)
		}

		oldKey := siteKey(existing.CountryCode, existing.EndPoint)
		newKey := siteKey(site.CountryCode, site.EndPoint)
		if string(oldKey) != string(newKey) {
			if owner := keys.Get(newKey); owner != nil && btoi(owner) != site.ID {
				return fmt.Errorf("site %s/%s already exists: %w", site.CountryCode, site.EndPoint, ErrConflict)
			}
			if err := keys.Delete(oldKey); err != nil {
				return fmt.Errorf("failed to drop site key: %w", err)
			}
		}
		if err := checkReferences(tx, site); err != nil {
			return err
		}

		if site.CreatedDate.IsZero() {
			site.CreatedDate = existing.CreatedDate
		}
		site.HostIDs = normalizeIDs(site.HostIDs)
		site.MonitorIDs = normalizeIDs(site.MonitorIDs)

		if err := putSite(b, site); err != nil {
			return err
		}
		return keys.Put(newKey, itob(site.ID))
	})
}

func (s *BoltStore) DeleteSite(ctx context.Context, id int64) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(SitesBucket)

		var existing Site
		found, err := getJSON(b, id, &existing)
		if err != nil {
			return err
		}
		if !found {
			return notFound("site", id)
		}

		if err := tx.Bucket(SiteKeysBucket).Delete(siteKey(existing.CountryCode, existing.EndPoint)); err != nil {
			return fmt.Errorf("failed to drop site key: %w", err)
		}
		if err := tx.Bucket(PreferencesBucket).Delete(itob(id)); err != nil {
			return fmt.Errorf("failed to drop site preference: %w", err)
		}
		return b.Delete(itob(id))
	})
}

// Host operations

func (s *BoltStore) GetHosts(ctx context.Context, filters HostFilters) ([]Host, error) {
	var hosts []Host

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(HostsBucket).ForEach(func(k, v []byte) error {
			var host Host
			if err := json.Unmarshal(v, &host); err != nil {
				return fmt.Errorf("failed to unmarshal host %d: %w", btoi(k), err)
			}

			// Apply filters
			if filters.VIP != "" && host.VIP != filters.VIP {
				return nil
			}
			if filters.Name != "" && host.Name != filters.Name {
				return nil
			}

			hosts = append(hosts, host)
			return nil
		})
	})

	return hosts, err
}

func (s *BoltStore) GetHost(ctx context.Context, id int64) (*Host, error) {
	var host Host

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(HostsBucket), id, &host)
		if err != nil {
			return err
		}
		if !found {
			return notFound("host", id)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (s *BoltStore) GetVIPs(ctx context.Context) ([]string, error) {
	hosts, err := s.GetHosts(ctx, HostFilters{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	vips := []string{}
	for _, host := range hosts {
		if host.VIP == "" || seen[host.VIP] {
			continue
		}
		seen[host.VIP] = true
		vips = append(vips, host.VIP)
	}
	sort.Strings(vips)
	return vips, nil
}

func (s *BoltStore) CreateHost(ctx context.Context, host *Host) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		host.ID = id
		return putHost(b, host)
	})
}

func (s *BoltStore) UpdateHost(ctx context.Context, host *Host) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		if b.Get(itob(host.ID)) == nil {
			return notFound("host", host.ID)
		}
		return putHost(b, host)
	})
}

func (s *BoltStore) UpdateHostStatus(ctx context.Context, id int64, status int) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		var host Host
		found, err := getJSON(b, id, &host)
		if err != nil {
			return err
		}
		if !found {
			return notFound("host", id)
		}
		host.Status = status
		return putHost(b, &host)
	})
}

func (s *BoltStore) DeleteHost(ctx context.Context, id int64) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		if b.Get(itob(id)) == nil {
			return notFound("host", id)
		}
		if err := detachFromSites(tx, func(site *Site) *[]int64 { return &site.HostIDs }, id); err != nil {
			return err
		}
		return b.Delete(itob(id))
	})
}

// Monitor operations

func (s *BoltStore) GetMonitors(ctx context.Context) ([]Monitor, error) {
	var monitors []Monitor

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(MonitorsBucket).ForEach(func(k, v []byte) error {
			var monitor Monitor
			if err := json.Unmarshal(v, &monitor); err != nil {
				return fmt.Errorf("failed to unmarshal monitor %d: %w", btoi(k), err)
			}
			monitors = append(monitors, monitor)
			return nil
		})
	})

	return monitors, err
}

func (s *BoltStore) GetMonitor(ctx context.Context, id int64) (*Monitor, error) {
	var monitor Monitor

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(MonitorsBucket), id, &monitor)
		if err != nil {
			return err
		}
		if !found {
			return notFound("monitor", id)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &monitor, nil
}

func (s *BoltStore) GetMonitorByEndPoint(ctx context.Context, endPoint string) (*Monitor, error) {
	monitors, err := s.GetMonitors(ctx)
	if err != nil {
		return nil, err
	}
	for i := range monitors {
		if monitors[i].EndPoint == endPoint {
			return &monitors[i], nil
		}
	}
	return nil, notFound("monitor", endPoint)
}

func (s *BoltStore) CreateMonitor(ctx context.Context, monitor *Monitor) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(MonitorsBucket)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		monitor.ID = id
		if monitor.CreatedDate.IsZero() {
			monitor.CreatedDate = time.Now()
		}
		return putJSON(b, monitor.ID, monitor)
	})
}

func (s *BoltStore) UpdateMonitor(ctx context.Context, monitor *Monitor) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(MonitorsBucket)
		var existing Monitor
		found, err := getJSON(b, monitor.ID, &existing)
		if err != nil {
			return err
		}
		if !found {
			return notFound("monitor", monitor.ID)
		}
		if monitor.CreatedDate.IsZero() {
			monitor.CreatedDate = existing.CreatedDate
		}
		return putJSON(b, monitor.ID, monitor)
	})
}

func (s *BoltStore) DeleteMonitor(ctx context.Context, id int64) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(MonitorsBucket)
		if b.Get(itob(id)) == nil {
			return notFound("monitor", id)
		}
		if err := detachFromSites(tx, func(site *Site) *[]int64 { return &site.MonitorIDs }, id); err != nil {
			return err
		}
		return b.Delete(itob(id))
	})
}

// Application operations

func (s *BoltStore) GetApplications(ctx context.Context) ([]Application, error) {
	var apps []Application

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(ApplicationsBucket).ForEach(func(k, v []byte) error {
			var app Application
			if err := json.Unmarshal(v, &app); err != nil {
				return fmt.Errorf("failed to unmarshal application %d: %w", btoi(k), err)
			}
			apps = append(apps, app)
			return nil
		})
	})

	return apps, err
}

func (s *BoltStore) GetApplication(ctx context.Context, id int64) (*Application, error) {
	var app Application

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(ApplicationsBucket), id, &app)
		if err != nil {
			return err
		}
		if !found {
			return notFound("application", id)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *BoltStore) CreateApplication(ctx context.Context, app *Application) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ApplicationsBucket)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		app.ID = id
		return putJSON(b, app.ID, app)
	})
}

func (s *BoltStore) UpdateApplication(ctx context.Context, app *Application) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ApplicationsBucket)
		if b.Get(itob(app.ID)) == nil {
			return notFound("application", app.ID)
		}
		return putJSON(b, app.ID, app)
	})
}

func (s *BoltStore) DeleteApplication(ctx context.Context, id int64) error {
	return s.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ApplicationsBucket)
		if b.Get(itob(id)) == nil {
			return notFound("application", id)
		}
		return b.Delete(itob(id))
	})
}

// Preference operations. Preferences are keyed by site id so a site can only
// ever hold one; the preference id itself comes from the bucket sequence.

func (s *BoltStore) GetPreferences(ctx context.Context) ([]Preference, error) {
	var prefs []Preference

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(PreferencesBucket).ForEach(func(k, v []byte) error {
			var pref Preference
			if err := json.Unmarshal(v, &pref); err != nil {
				return fmt.Errorf("failed to unmarshal preference for site %d: %w", btoi(k), err)
			}
			prefs = append(prefs, pref)
			return nil
		})
	})

	return prefs, err
}

func (s *BoltStore) GetPreferenceBySiteID(ctx context.Context, siteID int64) (*Preference, error) {
	var pref Preference

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(PreferencesBucket), siteID, &pref)
		if err != nil {
			return err
		}
		if !found {
			return notFound("preference for site", siteID)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (s *BoltStore) SavePreference(ctx context.Context, pref *Preference) error {
	return s.update(func(tx *bbolt.Tx) error {
		if tx.Bucket(SitesBucket).Get(itob(pref.SiteID)) == nil {
			return notFound("site", pref.SiteID)
		}

		b := tx.Bucket(PreferencesBucket)
		var existing Preference
		found, err := getJSON(b, pref.SiteID, &existing)
		if err != nil {
			return err
		}
		if found {
			pref.ID = existing.ID
		} else {
			id, err := nextID(b)
			if err != nil {
				return err
			}
			pref.ID = id
		}
		pref.UpdatedAt = time.Now()
		return putJSON(b, pref.SiteID, pref)
	})
}

// helpers

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func siteKey(countryCode, endPoint string) []byte {
	return []byte(countryCode + "/" + endPoint)
}

func nextID(b *bbolt.Bucket) (int64, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate id: %w", err)
	}
	return int64(seq), nil
}

func getJSON(b *bbolt.Bucket, id int64, v interface{}) (bool, error) {
	data := b.Get(itob(id))
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal record %d: %w", id, err)
	}
	return true, nil
}

func putJSON(b *bbolt.Bucket, id int64, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %d: %w", id, err)
	}
	return b.Put(itob(id), data)
}

func putSite(b *bbolt.Bucket, site *Site) error {
	stored := *site
	stored.Hosts = nil
	stored.Monitors = nil
	return putJSON(b, stored.ID, &stored)
}

func putHost(b *bbolt.Bucket, host *Host) error {
	stored := *host
	stored.HealthCheck = nil
	return putJSON(b, stored.ID, &stored)
}

func resolveSite(tx *bbolt.Tx, site *Site) error {
	site.Hosts = make([]Host, 0, len(site.HostIDs))
	for _, id := range site.HostIDs {
		var host Host
		found, err := getJSON(tx.Bucket(HostsBucket), id, &host)
		if err != nil {
			return err
		}
		if found {
			site.Hosts = append(site.Hosts, host)
		}
	}

	site.Monitors = make([]Monitor, 0, len(site.MonitorIDs))
	for _, id := range site.MonitorIDs {
		var monitor Monitor
		found, err := getJSON(tx.Bucket(MonitorsBucket), id, &monitor)
		if err != nil {
			return err
		}
		if found {
			site.Monitors = append(site.Monitors, monitor)
		}
	}
	return nil
}

func checkReferences(tx *bbolt.Tx, site *Site) error {
	hosts := tx.Bucket(HostsBucket)
	for _, id := range site.HostIDs {
		if hosts.Get(itob(id)) == nil {
			return notFound("host", id)
		}
	}
	monitors := tx.Bucket(MonitorsBucket)
	for _, id := range site.MonitorIDs {
		if monitors.Get(itob(id)) == nil {
			return notFound("monitor", id)
		}
	}
	return nil
}

// detachFromSites removes id from the association picked out of every site.
// Sites are rewritten after iteration since bolt forbids writes inside ForEach.
func detachFromSites(tx *bbolt.Tx, pick func(*Site) *[]int64, id int64) error {
	b := tx.Bucket(SitesBucket)

	var changed []Site
	err := b.ForEach(func(k, v []byte) error {
		var site Site
		if err := json.Unmarshal(v, &site); err != nil {
			return fmt.Errorf("failed to unmarshal site %d: %w", btoi(k), err)
		}
		ids := pick(&site)
		kept := (*ids)[:0:0]
		for _, existing := range *ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		if len(kept) != len(*ids) {
			*ids = kept
			changed = append(changed, site)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range changed {
		if err := putSite(b, &changed[i]); err != nil {
			return err
		}
	}
	return nil
}

// normalizeIDs sorts and de-duplicates an association set.
func normalizeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
