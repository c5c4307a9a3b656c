// Package scheduler periodically syncs offline lesson data for every
// configured site.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SAP-F-2025/lesson-sync-service/internal/services"
)

// Scheduler runs the auto-sync pass on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sync    services.SyncService
	siteIDs []string
	spec    string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a scheduler for the given sites. spec accepts the usual
// cron expressions plus descriptors like "@every 5m".
func New(syncService services.SyncService, siteIDs []string, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		sync:    syncService,
		siteIDs: siteIDs,
		spec:    spec,
		timeout: 10 * time.Minute,
		logger:  logger,
	}
}

// Start registers the job and begins the schedule.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sync scheduler started", "schedule", s.spec, "sites", len(s.siteIDs))
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if len(s.siteIDs) == 0 {
		// No configured sites; sweep whatever the store has seen.
		results, err := s.sync.SyncAllSites(ctx)
		if err != nil {
			s.logger.Warn("scheduled sync failed", "error", err)
			return
		}
		for siteID, siteResults := range results {
			s.logger.Info("scheduled sync pass finished", "site_id", siteID, "lessons", len(siteResults))
		}
		return
	}

	for _, siteID := range s.siteIDs {
		results, err := s.sync.SyncAllLessons(ctx, siteID)
		if err != nil {
			s.logger.Warn("scheduled sync failed", "error", err, "site_id", siteID)
			continue
		}
		if len(results) > 0 {
			s.logger.Info("scheduled sync pass finished", "site_id", siteID, "lessons", len(results))
		}
	}
}
