// internal/database/store_extensions.go - maintenance operations
package database

import (
	"context"
)

// ExtendedStore extends the basic Store interface with maintenance operations
type ExtendedStore interface {
	Store

	CompactDatabase(ctx context.Context) error
	GetDatabaseStats(ctx context.Context) (*DatabaseStats, error)
}

// DatabaseStats provides information about database size and contents
type DatabaseStats struct {
	Backend           string `json:"backend"`
	TotalSites        int    `json:"total_sites"`
	TotalHosts        int    `json:"total_hosts"`
	TotalMonitors     int    `json:"total_monitors"`
	TotalApplications int    `json:"total_applications"`
	TotalPreferences  int    `json:"total_preferences"`
	DatabaseSize      int64  `json:"database_size_bytes"`
}
