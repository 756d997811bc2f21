// internal/database/sqlstore.go - sqlite implementation
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLStore persists entities in sqlite. Every write runs inside one
// transaction that is rolled back unless it commits.
type SQLStore struct {
	db   *sql.DB
	path string
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewSQLStore opens the sqlite database at path and runs migrations.
func NewSQLStore(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite serializes writers; a single connection keeps transactions from
	// failing with "database is locked" under concurrent admin writes.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.WithField("path", path).Info("SQLite store initialized")
	return &SQLStore{db: db, path: path}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Site operations

const siteColumns = `id, name, end_point, country_code, created_date`

func scanSite(row interface{ Scan(...interface{}) error }) (Site, error) {
	var site Site
	err := row.Scan(&site.ID, &site.Name, &site.EndPoint, &site.CountryCode, &site.CreatedDate)
	return site, err
}

func (s *SQLStore) GetSites(ctx context.Context) ([]Site, error) {
	sites, _, err := s.GetSitePage(ctx, 0, 0)
	return sites, err
}

func (s *SQLStore) GetSitePage(ctx context.Context, limit, offset int) ([]Site, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM site`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sites: %w", err)
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+siteColumns+` FROM site ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate sites: %w", err)
	}
	rows.Close()

	for i := range sites {
		if err := loadSiteIDs(ctx, s.db, &sites[i]); err != nil {
			return nil, 0, err
		}
	}
	return sites, total, nil
}

func (s *SQLStore) GetSite(ctx context.Context, id int64) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM site WHERE id = ?`, id)
	return s.resolve(ctx, row, id)
}

func (s *SQLStore) GetSiteByCountryName(ctx context.Context, countryCode, endPoint string) (*Site, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM site WHERE country_code = ? AND end_point = ?`, countryCode, endPoint)
	return s.resolve(ctx, row, countryCode+"/"+endPoint)
}

func (s *SQLStore) resolve(ctx context.Context, row *sql.Row, key interface{}) (*Site, error) {
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("site", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan site: %w", err)
	}
	if err := loadSiteIDs(ctx, s.db, &site); err != nil {
		return nil, err
	}

	site.Hosts = []Host{}
	hostRows, err := s.db.QueryContext(ctx, `SELECT `+hostColumns+` FROM host
		JOIN site_host ON site_host.host_id = host.id WHERE site_host.site_id = ? ORDER BY host.id`, site.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query site hosts: %w", err)
	}
	defer hostRows.Close()
	for hostRows.Next() {
		host, err := scanHost(hostRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		site.Hosts = append(site.Hosts, host)
	}
	if err := hostRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate site hosts: %w", err)
	}
	hostRows.Close()

	site.Monitors = []Monitor{}
	monitorRows, err := s.db.QueryContext(ctx, `SELECT `+monitorColumns+` FROM monitor
		JOIN site_monitor ON site_monitor.monitor_id = monitor.id WHERE site_monitor.site_id = ? ORDER BY monitor.id`, site.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query site monitors: %w", err)
	}
	defer monitorRows.Close()
	for monitorRows.Next() {
		monitor, err := scanMonitor(monitorRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor: %w", err)
		}
		site.Monitors = append(site.Monitors, monitor)
	}
	if err := monitorRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate site monitors: %w", err)
	}

	return &site, nil
}

func loadSiteIDs(ctx context.Context, q queryer, site *Site) error {
	hostIDs, err := queryIDs(ctx, q, `SELECT host_id FROM site_host WHERE site_id = ? ORDER BY host_id`, site.ID)
	if err != nil {
		return fmt.Errorf("failed to load site hosts: %w", err)
	}
	monitorIDs, err := queryIDs(ctx, q, `SELECT monitor_id FROM site_monitor WHERE site_id = ? ORDER BY monitor_id`, site.ID)
	if err != nil {
		return fmt.Errorf("failed to load site monitors: %w", err)
	}
	site.HostIDs = hostIDs
	site.MonitorIDs = monitorIDs
	return nil
}

func queryIDs(ctx context.Context, q queryer, query string, args ...interface{}) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) CreateSite(ctx context.Context, site *Site) error {
	if site.CreatedDate.IsZero() {
		site.CreatedDate = time.Now()
	}
	site.HostIDs = normalizeIDs(site.HostIDs)
	site.MonitorIDs = normalizeIDs(site.MonitorIDs)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO site (name, end_point, country_code, created_date) VALUES (?, ?, ?, ?)`,
			site.Name, site.EndPoint, site.CountryCode, site.CreatedDate)
		if err != nil {
			return fmt.Errorf("failed to insert site: %w", mapSQLError(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read site id: %w", err)
		}
		site.ID = id
		return writeAssociations(ctx, tx, site)
	})
}

func (s *SQLStore) UpdateSite(ctx context.Context, site *Site) error {
	site.HostIDs = normalizeIDs(site.HostIDs)
	site.MonitorIDs = normalizeIDs(site.MonitorIDs)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var created time.Time
		err := tx.QueryRowContext(ctx, `SELECT created_date FROM site WHERE id = ?`, site.ID).Scan(&created)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("site", site.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to load site: %w", err)
		}
		if site.CreatedDate.IsZero() {
			site.CreatedDate = created
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE site SET name = ?, end_point = ?, country_code = ?, created_date = ? WHERE id = ?`,
			site.Name, site.EndPoint, site.CountryCode, site.CreatedDate, site.ID); err != nil {
			return fmt.Errorf("failed to update site: %w", mapSQLError(err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM site_host WHERE site_id = ?`, site.ID); err != nil {
			return fmt.Errorf("failed to clear site hosts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM site_monitor WHERE site_id = ?`, site.ID); err != nil {
			return fmt.Errorf("failed to clear site monitors: %w", err)
		}
		return writeAssociations(ctx, tx, site)
	})
}

func writeAssociations(ctx context.Context, tx *sql.Tx, site *Site) error {
	for _, id := range site.HostIDs {
		if err := requireRow(ctx, tx, "host", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO site_host (site_id, host_id) VALUES (?, ?)`, site.ID, id); err != nil {
			return fmt.Errorf("failed to attach host %d: %w", id, err)
		}
	}
	for _, id := range site.MonitorIDs {
		if err := requireRow(ctx, tx, "monitor", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO site_monitor (site_id, monitor_id) VALUES (?, ?)`, site.ID, id); err != nil {
			return fmt.Errorf("failed to attach monitor %d: %w", id, err)
		}
	}
	return nil
}

// requireRow checks that id exists in table. table is always a package constant.
func requireRow(ctx context.Context, q queryer, table string, id int64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(table, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up %s %d: %w", table, id, err)
	}
	return nil
}

func (s *SQLStore) DeleteSite(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "site", id)
}

func (s *SQLStore) deleteRow(ctx context.Context, table string, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(table, id)
		}
		return nil
	})
}

// Host operations

const hostColumns = `host.id, host.name, host.ip, host.port, host.vip, host.status`

func scanHost(row interface{ Scan(...interface{}) error }) (Host, error) {
	var host Host
	err := row.Scan(&host.ID, &host.Name, &host.IP, &host.Port, &host.VIP, &host.Status)
	return host, err
}

func (s *SQLStore) GetHosts(ctx context.Context, filters HostFilters) ([]Host, error) {
	var (
		where []string
		args  []interface{}
	)
	if filters.VIP != "" {
		where = append(where, "vip = ?")
		args = append(args, filters.VIP)
	}
	if filters.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filters.Name)
	}

	query := `SELECT ` + hostColumns + ` FROM host`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hosts: %w", err)
	}
	defer rows.Close()

	var hosts []Host
	for rows.Next() {
		host, err := scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

func (s *SQLStore) GetHost(ctx context.Context, id int64) (*Host, error) {
	host, err := scanHost(s.db.QueryRowContext(ctx, `SELECT `+hostColumns+` FROM host WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("host", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan host: %w", err)
	}
	return &host, nil
}

func (s *SQLStore) GetVIPs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT vip FROM host WHERE vip != '' GROUP BY vip ORDER BY vip`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vips: %w", err)
	}
	defer rows.Close()

	vips := []string{}
	for rows.Next() {
		var vip string
		if err := rows.Scan(&vip); err != nil {
			return nil, fmt.Errorf("failed to scan vip: %w", err)
		}
		vips = append(vips, vip)
	}
	return vips, rows.Err()
}

func (s *SQLStore) CreateHost(ctx context.Context, host *Host) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO host (name, ip, port, vip, status) VALUES (?, ?, ?, ?, ?)`,
			host.Name, host.IP, host.Port, host.VIP, host.Status)
		if err != nil {
			return fmt.Errorf("failed to insert host: %w", err)
		}
		host.ID, err = res.LastInsertId()
		return err
	})
}

func (s *SQLStore) UpdateHost(ctx context.Context, host *Host) error {
	return s.exec1(ctx, "host", host.ID,
		`UPDATE host SET name = ?, ip = ?, port = ?, vip = ?, status = ? WHERE id = ?`,
		host.Name, host.IP, host.Port, host.VIP, host.Status, host.ID)
}

func (s *SQLStore) UpdateHostStatus(ctx context.Context, id int64, status int) error {
	return s.exec1(ctx, "host", id, `UPDATE host SET status = ? WHERE id = ?`, status, id)
}

func (s *SQLStore) DeleteHost(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "host", id)
}

// exec1 runs an update that must touch exactly one row of table.
func (s *SQLStore) exec1(ctx context.Context, table string, id int64, query string, args ...interface{}) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(table, id)
		}
		return nil
	})
}

// Monitor operations

const monitorColumns = `monitor.id, monitor.name, monitor.end_point, monitor.created_date`

func scanMonitor(row interface{ Scan(...interface{}) error }) (Monitor, error) {
	var monitor Monitor
	err := row.Scan(&monitor.ID, &monitor.Name, &monitor.EndPoint, &monitor.CreatedDate)
	return monitor, err
}

func (s *SQLStore) GetMonitors(ctx context.Context) ([]Monitor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+monitorColumns+` FROM monitor ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitors: %w", err)
	}
	defer rows.Close()

	var monitors []Monitor
	for rows.Next() {
		monitor, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor: %w", err)
		}
		monitors = append(monitors, monitor)
	}
	return monitors, rows.Err()
}

func (s *SQLStore) GetMonitor(ctx context.Context, id int64) (*Monitor, error) {
	monitor, err := scanMonitor(s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitor WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("monitor", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan monitor: %w", err)
	}
	return &monitor, nil
}

func (s *SQLStore) GetMonitorByEndPoint(ctx context.Context, endPoint string) (*Monitor, error) {
	monitor, err := scanMonitor(s.db.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitor WHERE end_point = ? ORDER BY id LIMIT 1`, endPoint))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("monitor", endPoint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan monitor: %w", err)
	}
	return &monitor, nil
}

func (s *SQLStore) CreateMonitor(ctx context.Context, monitor *Monitor) error {
	if monitor.CreatedDate.IsZero() {
		monitor.CreatedDate = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO monitor (name, end_point, created_date) VALUES (?, ?, ?)`,
			monitor.Name, monitor.EndPoint, monitor.CreatedDate)
		if err != nil {
			return fmt.Errorf("failed to insert monitor: %w", err)
		}
		monitor.ID, err = res.LastInsertId()
		return err
	})
}

func (s *SQLStore) UpdateMonitor(ctx context.Context, monitor *Monitor) error {
	if monitor.CreatedDate.IsZero() {
		return s.exec1(ctx, "monitor", monitor.ID,
			`UPDATE monitor SET name = ?, end_point = ? WHERE id = ?`,
			monitor.Name, monitor.EndPoint, monitor.ID)
	}
	return s.exec1(ctx, "monitor", monitor.ID,
		`UPDATE monitor SET name = ?, end_point = ?, created_date = ? WHERE id = ?`,
		monitor.Name, monitor.EndPoint, monitor.CreatedDate, monitor.ID)
}

func (s *SQLStore) DeleteMonitor(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "monitor", id)
}

// Application operations

func (s *SQLStore) GetApplications(ctx context.Context) ([]Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, url FROM application ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		var app Application
		if err := rows.Scan(&app.ID, &app.Name, &app.URL); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (s *SQLStore) GetApplication(ctx context.Context, id int64) (*Application, error) {
	var app Application
	err := s.db.QueryRowContext(ctx, `SELECT id, name, url FROM application WHERE id = ?`, id).
		Scan(&app.ID, &app.Name, &app.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("application", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	return &app, nil
}

func (s *SQLStore) CreateApplication(ctx context.Context, app *Application) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO application (name, url) VALUES (?, ?)`, app.Name, app.URL)
		if err != nil {
			return fmt.Errorf("failed to insert application: %w", err)
		}
		app.ID, err = res.LastInsertId()
		return err
	})
}

func (s *SQLStore) UpdateApplication(ctx context.Context, app *Application) error {
	return s.exec1(ctx, "application", app.ID,
		`UPDATE application SET name = ?, url = ? WHERE id = ?`, app.Name, app.URL, app.ID)
}

func (s *SQLStore) DeleteApplication(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "application", id)
}

// Preference operations

func scanPreference(row interface{ Scan(...interface{}) error }) (Preference, error) {
	var (
		pref Preference
		data string
	)
	if err := row.Scan(&pref.ID, &pref.SiteID, &data, &pref.UpdatedAt); err != nil {
		return pref, err
	}
	if err := json.Unmarshal([]byte(data), &pref.Data); err != nil {
		return pref, fmt.Errorf("failed to decode preference %d: %w", pref.ID, err)
	}
	return pref, nil
}

func (s *SQLStore) GetPreferences(ctx context.Context) ([]Preference, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, site_id, data, updated_at FROM preference ORDER BY site_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	var prefs []Preference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

func (s *SQLStore) GetPreferenceBySiteID(ctx context.Context, siteID int64) (*Preference, error) {
	pref, err := scanPreference(s.db.QueryRowContext(ctx,
		`SELECT id, site_id, data, updated_at FROM preference WHERE site_id = ?`, siteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("preference for site", siteID)
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (s *SQLStore) SavePreference(ctx context.Context, pref *Preference) error {
	data, err := json.Marshal(pref.Data)
	if err != nil {
		return fmt.Errorf("failed to encode preference: %w", err)
	}
	pref.UpdatedAt = time.Now()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, "site", pref.SiteID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO preference (site_id, data, updated_at) VALUES (?, ?, ?)
ON CONFLICT (site_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			pref.SiteID, string(data), pref.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert preference: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM preference WHERE site_id = ?`, pref.SiteID).Scan(&pref.ID)
	})
}

// Maintenance

func (s *SQLStore) GetDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{Backend: "sqlite"}

	counts := []struct {
		table string
		dst   *int
	}{
		{"site", &stats.TotalSites},
		{"host", &stats.TotalHosts},
		{"monitor", &stats.TotalMonitors},
		{"application", &stats.TotalApplications},
		{"preference", &stats.TotalPreferences},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to get database stats: %w", err)
		}
	}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = fileInfo.Size()
	}
	return stats, nil
}

func (s *SQLStore) CompactDatabase(ctx context.Context) error {
	logrus.Info("Starting database compaction")
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	logrus.Info("Database compaction completed successfully")
	return nil
}

func mapSQLError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%v: %w", err, ErrConflict)
	}
	return err
}
