// internal/database/boltstore_extended.go - BoltDB maintenance operations
package database

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

// ExtendedBoltStore implements ExtendedStore interface
type ExtendedBoltStore struct {
	*BoltStore
}

// NewExtendedBoltStore creates a new extended BoltDB store
func NewExtendedBoltStore(path string) (*ExtendedBoltStore, error) {
	baseStore, err := NewBoltStore(path)
	if err != nil {
		return nil, err
	}

	return &ExtendedBoltStore{BoltStore: baseStore}, nil
}

// GetDatabaseStats returns entity counts and the file size
func (s *ExtendedBoltStore) GetDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{Backend: "boltdb"}

	err := s.view(func(tx *bbolt.Tx) error {
		counts := []struct {
			bucket []byte
			dst    *int
		}{
			{SitesBucket, &stats.TotalSites},
			{HostsBucket, &stats.TotalHosts},
			{MonitorsBucket, &stats.TotalMonitors},
			{ApplicationsBucket, &stats.TotalApplications},
			{PreferencesBucket, &stats.TotalPreferences},
		}
		for _, c := range counts {
			if b := tx.Bucket(c.bucket); b != nil {
				*c.dst = b.Stats().KeyN
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get database stats: %w", err)
	}

	// Get file size
	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = fileInfo.Size()
	}

	return stats, nil
}

// CompactDatabase rewrites the database into a fresh file. Bucket sequences
// are carried over so ids handed out before compaction are never reissued.
func (s *ExtendedBoltStore) CompactDatabase(ctx context.Context) error {
	logrus.Info("Starting database compaction")

	s.mu.Lock()
	defer s.mu.Unlock()

	compactPath := s.path + ".compact.tmp"

	newDB, err := openBolt(compactPath)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}
	defer os.Remove(compactPath)

	err = s.db.View(func(oldTx *bbolt.Tx) error {
		return newDB.Update(func(newTx *bbolt.Tx) error {
			for _, bucketName := range allBuckets {
				newBucket, err := newTx.CreateBucketIfNotExists(bucketName)
				if err != nil {
					return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
				}

				oldBucket := oldTx.Bucket(bucketName)
				if oldBucket == nil {
					continue
				}

				cursor := oldBucket.Cursor()
				for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
					if err := newBucket.Put(copyBytes(k), copyBytes(v)); err != nil {
						return fmt.Errorf("failed to copy data: %w", err)
					}
				}
				if err := newBucket.SetSequence(oldBucket.Sequence()); err != nil {
					return fmt.Errorf("failed to carry sequence for %s: %w", bucketName, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		newDB.Close()
		return fmt.Errorf("failed to copy data to compact database: %w", err)
	}

	if err := newDB.Close(); err != nil {
		return fmt.Errorf("failed to close compact database: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	// Replace old database with compacted version
	if err := os.Rename(compactPath, s.path); err != nil {
		if db, reopenErr := openBolt(s.path); reopenErr == nil {
			s.db = db
		}
		return fmt.Errorf("failed to replace database: %w", err)
	}

	// Reopen the compacted database
	s.db, err = openBolt(s.path)
	if err != nil {
		return fmt.Errorf("failed to reopen compacted database: %w", err)
	}

	logrus.Info("Database compaction completed successfully")
	return nil
}

// copyBytes creates a copy of a byte slice
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}
