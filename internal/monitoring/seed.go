// internal/monitoring/seed.go - loads the configured catalog into the store
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"sitemonitor/internal/config"
	"sitemonitor/internal/database"
)

type SeedReport struct {
	MonitorsCreated int `json:"monitors_created"`
	MonitorsUpdated int `json:"monitors_updated"`
	HostsCreated    int `json:"hosts_created"`
	HostsUpdated    int `json:"hosts_updated"`
	SitesCreated    int `json:"sites_created"`
	SitesUpdated    int `json:"sites_updated"`
}

// Seed upserts the seed catalog. Monitors are matched by endpoint, hosts by
// name and sites by country and endpoint, so running it twice changes
// nothing the second time.
func Seed(ctx context.Context, store database.Store, seed config.SeedConfig) (*SeedReport, error) {
	report := &SeedReport{}

	monitorIDs := make(map[string]int64, len(seed.Monitors))
	for _, m := range seed.Monitors {
		id, err := seedMonitor(ctx, store, m, report)
		if err != nil {
			return report, err
		}
		monitorIDs[m.EndPoint] = id
	}

	hostIDs := make(map[string]int64, len(seed.Hosts))
	for _, h := range seed.Hosts {
		id, err := seedHost(ctx, store, h, report)
		if err != nil {
			return report, err
		}
		hostIDs[h.Name] = id
	}

	for _, s := range seed.Sites {
		if err := seedSite(ctx, store, s, hostIDs, monitorIDs, report); err != nil {
			return report, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"monitors_created": report.MonitorsCreated,
		"hosts_created":    report.HostsCreated,
		"sites_created":    report.SitesCreated,
		"updated":          report.MonitorsUpdated + report.HostsUpdated + report.SitesUpdated,
	}).Info("Seed completed")

	return report, nil
}

func seedMonitor(ctx context.Context, store database.Store, m config.SeedMonitor, report *SeedReport) (int64, error) {
	name := m.Name
	if name == "" {
		name = m.EndPoint
	}

	existing, err := store.GetMonitorByEndPoint(ctx, m.EndPoint)
	if errors.Is(err, database.ErrNotFound) {
		monitor := &database.Monitor{Name: name, EndPoint: m.EndPoint, CreatedDate: time.Now()}
		if err := store.CreateMonitor(ctx, monitor); err != nil {
			return 0, fmt.Errorf("failed to create monitor %s: %w", m.EndPoint, err)
		}
		report.MonitorsCreated++
		logrus.WithField("monitor", monitor.Label()).Info("Created monitor")
		return monitor.ID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get monitor %s: %w", m.EndPoint, err)
	}

	if existing.Name != name {
		existing.Name = name
		if err := store.UpdateMonitor(ctx, existing); err != nil {
			return 0, fmt.Errorf("failed to update monitor %s: %w", m.EndPoint, err)
		}
		report.MonitorsUpdated++
		logrus.WithField("monitor", existing.Label()).Info("Updated monitor")
	}
	return existing.ID, nil
}

func seedHost(ctx context.Context, store database.Store, h config.SeedHost, report *SeedReport) (int64, error) {
	matches, err := store.GetHosts(ctx, database.HostFilters{Name: h.Name})
	if err != nil {
		return 0, fmt.Errorf("failed to get host %s: %w", h.Name, err)
	}

	if len(matches) == 0 {
		host := &database.Host{Name: h.Name, IP: h.IP, Port: h.Port, VIP: h.VIP}
		if err := store.CreateHost(ctx, host); err != nil {
			return 0, fmt.Errorf("failed to create host %s: %w", h.Name, err)
		}
		report.HostsCreated++
		logrus.WithField("host", host.Label()).Info("Created host")
		return host.ID, nil
	}

	existing := matches[0]
	if existing.IP != h.IP || existing.Port != h.Port || existing.VIP != h.VIP {
		existing.IP, existing.Port, existing.VIP = h.IP, h.Port, h.VIP
		if err := store.UpdateHost(ctx, &existing); err != nil {
			return 0, fmt.Errorf("failed to update host %s: %w", h.Name, err)
		}
		report.HostsUpdated++
		logrus.WithField("host", existing.Label()).Info("Updated host")
	}
	return existing.ID, nil
}

func seedSite(ctx context.Context, store database.Store, s config.SeedSite, hostIDs, monitorIDs map[string]int64, report *SeedReport) error {
	hosts, err := resolveHostNames(ctx, store, s.Hosts, hostIDs)
	if err != nil {
		return fmt.Errorf("seed site %s/%s: %w", s.CountryCode, s.EndPoint, err)
	}
	monitors, err := resolveEndPoints(ctx, store, s.Monitors, monitorIDs)
	if err != nil {
		return fmt.Errorf("seed site %s/%s: %w", s.CountryCode, s.EndPoint, err)
	}

	name := s.Name
	if name == "" {
		name = s.EndPoint
	}

	existing, err := store.GetSiteByCountryName(ctx, s.CountryCode, s.EndPoint)
	if errors.Is(err, database.ErrNotFound) {
		site := &database.Site{
			Name:        name,
			EndPoint:    s.EndPoint,
			CountryCode: s.CountryCode,
			CreatedDate: time.Now(),
			HostIDs:     hosts,
			MonitorIDs:  monitors,
		}
		if err := store.CreateSite(ctx, site); err != nil {
			return fmt.Errorf("failed to create site %s/%s: %w", s.CountryCode, s.EndPoint, err)
		}
		report.SitesCreated++
		logrus.WithField("site", site.Label()).Info("Created site")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get site %s/%s: %w", s.CountryCode, s.EndPoint, err)
	}

	if existing.Name == name && sameIDs(existing.HostIDs, hosts) && sameIDs(existing.MonitorIDs, monitors) {
		return nil
	}
	existing.Name = name
	existing.HostIDs = hosts
	existing.MonitorIDs = monitors
	if err := store.UpdateSite(ctx, existing); err != nil {
		return fmt.Errorf("failed to update site %s/%s: %w", s.CountryCode, s.EndPoint, err)
	}
	report.SitesUpdated++
	logrus.WithField("site", existing.Label()).Info("Updated site")
	return nil
}

// resolveHostNames maps names to ids, falling back to the store for hosts
// created outside the seed.
func resolveHostNames(ctx context.Context, store database.Store, names []string, known map[string]int64) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, ok := known[name]; ok {
			ids = append(ids, id)
			continue
		}
		matches, err := store.GetHosts(ctx, database.HostFilters{Name: name})
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("unknown host %q", name)
		}
		ids = append(ids, matches[0].ID)
	}
	return normalize(ids), nil
}

func resolveEndPoints(ctx context.Context, store database.Store, endPoints []string, known map[string]int64) ([]int64, error) {
	ids := make([]int64, 0, len(endPoints))
	for _, endPoint := range endPoints {
		if id, ok := known[endPoint]; ok {
			ids = append(ids, id)
			continue
		}
		monitor, err := store.GetMonitorByEndPoint(ctx, endPoint)
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("unknown monitor %q", endPoint)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, monitor.ID)
	}
	return normalize(ids), nil
}

func normalize(ids []int64) []int64 {
	slices.Sort(ids)
	return slices.Compact(ids)
}

func sameIDs(a, b []int64) bool {
	return slices.Equal(normalize(slices.Clone(a)), b)
}
