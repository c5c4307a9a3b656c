package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/lesson-sync-service/internal/cache"
	"github.com/SAP-F-2025/lesson-sync-service/internal/events"
	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
	"github.com/SAP-F-2025/lesson-sync-service/internal/ws"
)

// warningRetakeFinished is surfaced when local data had to be discarded
// because the retake was already finished elsewhere.
const warningRetakeFinished = "Some of your offline answers were discarded because the attempt was already finished on another device."

// syncService implements SyncService as an explicit state machine per
// (site, lesson) key.
type syncService struct {
	repo      repositories.Repository
	client    ws.LessonWebService
	offline   OfflineService
	password  PasswordService
	cache     *cache.CacheManager
	publisher events.EventPublisher
	logger    *slog.Logger

	// minInterval spaces scheduled syncs of the same lesson.
	minInterval time.Duration

	mu       sync.Mutex
	inflight map[string]*syncRun
	blocked  map[string]int
	states   map[string]SyncState
}

// syncRun lets concurrent callers join an in-flight sync.
type syncRun struct {
	done   chan struct{}
	result *SyncResult
	err    error
}

// NewSyncService creates the retake synchronizer.
func NewSyncService(
	repo repositories.Repository,
	client ws.LessonWebService,
	offline OfflineService,
	password PasswordService,
	cacheManager *cache.CacheManager,
	publisher events.EventPublisher,
	logger *slog.Logger,
	minInterval time.Duration,
) SyncService {
	return &syncService{
		repo:        repo,
		client:      client,
		offline:     offline,
		password:    password,
		cache:       cacheManager,
		publisher:   publisher,
		logger:      logger,
		minInterval: minInterval,
		inflight:    make(map[string]*syncRun),
		blocked:     make(map[string]int),
		states:      make(map[string]SyncState),
	}
}

func syncKey(siteID string, lessonID int64) string {
	return fmt.Sprintf("%s:%d", siteID, lessonID)
}

// SyncLesson runs (or joins) the sync for one lesson. At most one run per
// key is ever in flight; a second caller waits for the first and shares
// its result.
func (s *syncService) SyncLesson(ctx context.Context, siteID string, lessonID int64, opts SyncOptions) (*SyncResult, error) {
	key := syncKey(siteID, lessonID)

	s.mu.Lock()
	if run, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		s.logger.Debug("joining in-flight sync", "site_id", siteID, "lesson_id", lessonID)
		select {
		case <-run.done:
			return run.result, run.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	run := &syncRun{done: make(chan struct{})}
	s.inflight[key] = run
	s.mu.Unlock()

	run.result, run.err = s.performSync(ctx, siteID, lessonID, opts)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	close(run.done)

	return run.result, run.err
}

// performSync drives the state machine: CheckingBlock, SyncingAttempts,
// SyncingRetake, then Done or Failed.
func (s *syncService) performSync(ctx context.Context, siteID string, lessonID int64, opts SyncOptions) (*SyncResult, error) {
	key := syncKey(siteID, lessonID)
	result := &SyncResult{SiteID: siteID, LessonID: lessonID, State: SyncStateCheckingBlock}

	s.setState(key, SyncStateCheckingBlock)
	if !opts.IgnoreBlock && s.IsBlocked(siteID, lessonID) {
		s.setState(key, SyncStateIdle)
		s.logger.Debug("sync blocked", "site_id", siteID, "lesson_id", lessonID)
		return nil, &SyncBlockedError{SiteID: siteID, LessonID: lessonID}
	}

	s.publish(ctx, events.TypeSyncStarted, events.SyncStartedEvent{SiteID: siteID, LessonID: lessonID})
	s.logger.Info("sync started", "site_id", siteID, "lesson_id", lessonID)

	// Queued view logs go first, best-effort; they never block the run.
	s.replayViewLogs(ctx, siteID, lessonID)

	remote := &remoteContext{}

	s.setState(key, SyncStateSyncingAttempts)
	result.State = SyncStateSyncingAttempts
	if err := s.syncAttempts(ctx, siteID, lessonID, remote, result); err != nil {
		return s.failSync(ctx, key, result, err)
	}

	s.setState(key, SyncStateSyncingRetake)
	result.State = SyncStateSyncingRetake
	if err := s.syncRetake(ctx, siteID, lessonID, remote, opts.IgnoreBlock, result); err != nil {
		return s.failSync(ctx, key, result, err)
	}

	if result.Updated {
		if s.cache != nil {
			cache.InvalidateLessonCache(ctx, s.cache, siteID, lessonID)
		}
		if result.CourseID != 0 {
			s.refreshLessonData(ctx, siteID, lessonID, remote.password)
		}
	}

	result.Time = time.Now()
	if err := s.setSyncTime(ctx, result); err != nil {
		s.logger.Warn("failed to record sync time", "error", err, "lesson_id", lessonID)
	}

	s.setState(key, SyncStateDone)
	result.State = SyncStateDone
	s.publish(ctx, events.TypeSyncCompleted, events.SyncCompletedEvent{
		SiteID:   siteID,
		LessonID: lessonID,
		Updated:  result.Updated,
		Warnings: result.Warnings,
	})
	s.logger.Info("sync finished",
		"site_id", siteID,
		"lesson_id", lessonID,
		"updated", result.Updated,
		"warnings", len(result.Warnings))

	return result, nil
}

func (s *syncService) failSync(ctx context.Context, key string, result *SyncResult, err error) (*SyncResult, error) {
	s.setState(key, SyncStateFailed)
	result.State = SyncStateFailed
	s.publish(ctx, events.TypeSyncFailed, events.SyncFailedEvent{
		SiteID:   result.SiteID,
		LessonID: result.LessonID,
		Error:    err.Error(),
	})
	s.logger.Warn("sync failed",
		"site_id", result.SiteID,
		"lesson_id", result.LessonID,
		"error", err)
	return nil, err
}

// SyncAllLessons syncs every lesson on the site that has offline data,
// skipping lessons synced recently. Each updated lesson is announced on
// the event bus.
func (s *syncService) SyncAllLessons(ctx context.Context, siteID string) ([]*SyncResult, error) {
	lessonIDs, err := s.offline.GetAllLessonsWithData(ctx, siteID)
	if err != nil {
		return nil, err
	}

	var results []*SyncResult
	for _, lessonID := range lessonIDs {
		if !s.needsSync(ctx, siteID, lessonID) {
			continue
		}

		result, err := s.SyncLesson(ctx, siteID, lessonID, SyncOptions{})
		if err != nil {
			if IsSyncBlocked(err) {
				continue
			}
			s.logger.Warn("auto sync failed", "error", err, "site_id", siteID, "lesson_id", lessonID)
			continue
		}
		results = append(results, result)

		if result.Updated {
			s.publish(ctx, events.TypeAutoSynced, events.AutoSyncedEvent{
				SiteID:   siteID,
				LessonID: lessonID,
				Warnings: result.Warnings,
			})
		}
	}
	return results, nil
}

// SyncAllSites discovers every site with stored attempt data and runs
// the per-site pass on each. A failing site does not stop the others.
func (s *syncService) SyncAllSites(ctx context.Context) (map[string][]*SyncResult, error) {
	siteIDs, err := s.repo.Attempt().SiteIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]*SyncResult)
	for _, siteID := range siteIDs {
		siteResults, err := s.SyncAllLessons(ctx, siteID)
		if err != nil {
			s.logger.Warn("site sync pass failed", "error", err, "site_id", siteID)
			continue
		}
		if len(siteResults) > 0 {
			results[siteID] = siteResults
		}
	}
	return results, nil
}

// needsSync enforces the minimum spacing between scheduled syncs.
func (s *syncService) needsSync(ctx context.Context, siteID string, lessonID int64) bool {
	if s.minInterval <= 0 {
		return true
	}
	record, err := s.repo.SyncRecord().Get(ctx, siteID, lessonID)
	if err != nil {
		return true
	}
	return time.Since(record.Time) >= s.minInterval
}

// ===== BLOCK REGISTRY =====

func (s *syncService) Block(siteID string, lessonID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[syncKey(siteID, lessonID)]++
}

func (s *syncService) Unblock(siteID string, lessonID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := syncKey(siteID, lessonID)
	if s.blocked[key] > 0 {
		s.blocked[key]--
	}
	if s.blocked[key] == 0 {
		delete(s.blocked, key)
	}
}

func (s *syncService) IsBlocked(siteID string, lessonID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[syncKey(siteID, lessonID)] > 0
}

// ===== STATE / BOOKKEEPING =====

func (s *syncService) setState(key string, state SyncState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
}

func (s *syncService) State(siteID string, lessonID int64) SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[syncKey(siteID, lessonID)]; ok {
		return state
	}
	return SyncStateIdle
}

func (s *syncService) LastSync(ctx context.Context, siteID string, lessonID int64) (*models.SyncResultSummary, error) {
	record, err := s.repo.SyncRecord().Get(ctx, siteID, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, storageErr("get sync record", err)
	}

	summary := &models.SyncResultSummary{Time: record.Time}
	if len(record.Warnings) > 0 {
		if err := json.Unmarshal(record.Warnings, &summary.Warnings); err != nil {
			return nil, fmt.Errorf("decode sync warnings: %w", err)
		}
	}
	return summary, nil
}

func (s *syncService) setSyncTime(ctx context.Context, result *SyncResult) error {
	warnings, err := json.Marshal(result.Warnings)
	if err != nil {
		return fmt.Errorf("encode sync warnings: %w", err)
	}
	record := &models.SyncRecord{
		SiteID:   result.SiteID,
		LessonID: result.LessonID,
		Time:     result.Time,
		Warnings: warnings,
	}
	return s.repo.SyncRecord().Save(ctx, nil, record)
}

func (s *syncService) GetRetakeFinishedInSync(ctx context.Context, siteID string, lessonID int64) (*models.RetakeFinishedInSync, error) {
	marker, err := s.repo.FinishedMarker().Get(ctx, siteID, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, storageErr("get finished marker", err)
	}
	return marker, nil
}

func (s *syncService) DeleteRetakeFinishedInSync(ctx context.Context, siteID string, lessonID int64) error {
	if err := s.repo.FinishedMarker().Delete(ctx, nil, siteID, lessonID); err != nil {
		return storageErr("delete finished marker", err)
	}
	return nil
}

func (s *syncService) publish(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		s.logger.Warn("failed to publish event", "error", err, "type", eventType)
	}
}
