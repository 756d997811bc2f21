// internal/database/store.go
package database

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned (wrapped) by keyed lookups that miss.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would break a uniqueness rule,
	// such as two sites sharing the same country and endpoint.
	ErrConflict = errors.New("conflict")
)

// Store defines the interface for database operations. Ids are assigned by the
// store on create and are never reused.
type Store interface {
	// Site operations
	GetSites(ctx context.Context) ([]Site, error)
	GetSitePage(ctx context.Context, limit, offset int) ([]Site, int, error)
	GetSite(ctx context.Context, id int64) (*Site, error)
	GetSiteByCountryName(ctx context.Context, countryCode, endPoint string) (*Site, error)
	CreateSite(ctx context.Context, site *Site) error
	UpdateSite(ctx context.Context, site *Site) error
	DeleteSite(ctx context.Context, id int64) error

	// Host operations
	GetHosts(ctx context.Context, filters HostFilters) ([]Host, error)
	GetHost(ctx context.Context, id int64) (*Host, error)
	GetVIPs(ctx context.Context) ([]string, error)
	CreateHost(ctx context.Context, host *Host) error
	UpdateHost(ctx context.Context, host *Host) error
	UpdateHostStatus(ctx context.Context, id int64, status int) error
	DeleteHost(ctx context.Context, id int64) error

	// Monitor operations
	GetMonitors(ctx context.Context) ([]Monitor, error)
	GetMonitor(ctx context.Context, id int64) (*Monitor, error)
	GetMonitorByEndPoint(ctx context.Context, endPoint string) (*Monitor, error)
	CreateMonitor(ctx context.Context, monitor *Monitor) error
	UpdateMonitor(ctx context.Context, monitor *Monitor) error
	DeleteMonitor(ctx context.Context, id int64) error

	// Application operations
	GetApplications(ctx context.Context) ([]Application, error)
	GetApplication(ctx context.Context, id int64) (*Application, error)
	CreateApplication(ctx context.Context, app *Application) error
	UpdateApplication(ctx context.Context, app *Application) error
	DeleteApplication(ctx context.Context, id int64) error

	// Preference operations
	GetPreferences(ctx context.Context) ([]Preference, error)
	GetPreferenceBySiteID(ctx context.Context, siteID int64) (*Preference, error)
	SavePreference(ctx context.Context, pref *Preference) error

	// Close the database connection
	Close() error
}

// NewStore opens the backend named by dbType ("boltdb" or "sqlite").
func NewStore(dbType, path string) (ExtendedStore, error) {
	switch dbType {
	case "", "boltdb":
		return NewExtendedBoltStore(path)
	case "sqlite":
		return NewSQLStore(path)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notFound(kind string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, key, ErrNotFound)
}
