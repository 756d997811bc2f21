// internal/database/migrations.go - sqlite schema
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// sqlMigrations create the schema. Every table uses AUTOINCREMENT so ids are
// never reused, even after deletes.
var sqlMigrations = []struct {
	name string
	sql  string
}{
	{
		name: "create_site_table",
		sql: `
CREATE TABLE IF NOT EXISTS site (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    end_point TEXT NOT NULL,
    country_code TEXT NOT NULL,
    created_date TIMESTAMP NOT NULL,
    UNIQUE (country_code, end_point)
);`,
	},
	{
		name: "create_host_table",
		sql: `
CREATE TABLE IF NOT EXISTS host (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    ip TEXT NOT NULL DEFAULT '',
    port INTEGER NOT NULL DEFAULT 80,
    vip TEXT NOT NULL DEFAULT '',
    status INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_host_vip ON host(vip);`,
	},
	{
		name: "create_monitor_table",
		sql: `
CREATE TABLE IF NOT EXISTS monitor (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    end_point TEXT NOT NULL,
    created_date TIMESTAMP NOT NULL
);`,
	},
	{
		name: "create_application_table",
		sql: `
CREATE TABLE IF NOT EXISTS application (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT ''
);`,
	},
	{
		name: "create_site_association_tables",
		sql: `
CREATE TABLE IF NOT EXISTS site_host (
    site_id INTEGER NOT NULL REFERENCES site(id) ON DELETE CASCADE,
    host_id INTEGER NOT NULL REFERENCES host(id) ON DELETE CASCADE,
    PRIMARY KEY (site_id, host_id)
);

CREATE TABLE IF NOT EXISTS site_monitor (
    site_id INTEGER NOT NULL REFERENCES site(id) ON DELETE CASCADE,
    monitor_id INTEGER NOT NULL REFERENCES monitor(id) ON DELETE CASCADE,
    PRIMARY KEY (site_id, monitor_id)
);`,
	},
	{
		name: "create_preference_table",
		sql: `
CREATE TABLE IF NOT EXISTS preference (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id INTEGER NOT NULL UNIQUE REFERENCES site(id) ON DELETE CASCADE,
    data TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`,
	},
}

// migrate runs all database migrations to create the schema.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, migration := range sqlMigrations {
		logrus.WithField("migration", migration.name).Debug("Running migration")
		if _, err := db.ExecContext(ctx, migration.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.name, err)
		}
	}
	return nil
}
