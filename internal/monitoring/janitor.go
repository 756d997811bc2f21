// internal/monitoring/janitor.go - preference housekeeping
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"sitemonitor/internal/database"
	"sitemonitor/internal/layout"
)

type Janitor struct {
	store database.Store
}

func NewJanitor(store database.Store) *Janitor {
	return &Janitor{store: store}
}

// PurgeStalePreferences drops endpoints from stored preferences that are no
// longer among their site's monitors. It returns the number of preferences
// rewritten.
func (j *Janitor) PurgeStalePreferences(ctx context.Context) (int, error) {
	prefs, err := j.store.GetPreferences(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get preferences: %w", err)
	}

	purged := 0
	for i := range prefs {
		pref := &prefs[i]

		site, err := j.store.GetSite(ctx, pref.SiteID)
		if database.IsNotFound(err) {
			continue
		}
		if err != nil {
			return purged, fmt.Errorf("failed to get site %d: %w", pref.SiteID, err)
		}

		stale := append(layout.Stale(site.Monitors, pref.Data.Col1), layout.Stale(site.Monitors, pref.Data.Col2)...)
		if !layout.Prune(site.Monitors, &pref.Data) {
			continue
		}

		if err := j.store.SavePreference(ctx, pref); err != nil {
			return purged, fmt.Errorf("failed to save preference for site %d: %w", pref.SiteID, err)
		}
		purged++

		logrus.WithFields(logrus.Fields{
			"site":  site.Label(),
			"stale": stale,
		}).Info("Purged stale preference entries")
	}

	if purged > 0 {
		logrus.WithField("count", purged).Info("Preference purge completed")
	} else {
		logrus.Debug("No stale preference entries found")
	}
	return purged, nil
}

// SchedulePeriodicPurge runs PurgeStalePreferences now and then every
// interval until ctx is done.
func (j *Janitor) SchedulePeriodicPurge(ctx context.Context, interval time.Duration) {
	go func() {
		if _, err := j.PurgeStalePreferences(ctx); err != nil {
			logrus.WithError(err).Error("Initial preference purge failed")
		}
	}()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logrus.Debug("Stopping periodic preference purge")
				return
			case <-ticker.C:
				if _, err := j.PurgeStalePreferences(ctx); err != nil {
					logrus.WithError(err).Error("Scheduled preference purge failed")
				}
			}
		}
	}()

	logrus.WithField("interval", interval).Info("Scheduled periodic preference purge")
}
