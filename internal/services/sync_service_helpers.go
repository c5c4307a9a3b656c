package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/lesson-sync-service/internal/cache"
	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
	"github.com/SAP-F-2025/lesson-sync-service/internal/ws"
)

// remoteContext caches the remote lesson state for the duration of one
// sync run so both phases share a single fetch.
type remoteContext struct {
	lesson   *models.Lesson
	info     *models.AccessInfo
	password string
	fetched  bool
}

// fetchRemote loads the lesson and its access information and resolves
// the stored password once per run. Transport failures abort the sync.
func (s *syncService) fetchRemote(ctx context.Context, siteID string, lessonID int64, remote *remoteContext) error {
	if remote.fetched {
		return nil
	}

	lesson, err := s.client.GetLessonByID(ctx, siteID, lessonID)
	if err != nil {
		return err
	}
	info, err := s.client.GetAccessInformation(ctx, siteID, lessonID)
	if err != nil {
		return err
	}

	var password string
	if lesson.UsePassword && !info.CanManage {
		password, err = s.password.ResolvePassword(ctx, siteID, lesson, info, nil)
		if err != nil {
			return err
		}
	}

	remote.lesson = lesson
	remote.info = info
	remote.password = password
	remote.fetched = true
	return nil
}

// syncAttempts sends every stored page attempt to the LMS in the order
// they were recorded. Attempts belonging to a retake the LMS no longer
// considers current are discarded with a single warning.
func (s *syncService) syncAttempts(ctx context.Context, siteID string, lessonID int64, remote *remoteContext, result *SyncResult) error {
	attempts, err := s.repo.Attempt().GetLessonAttempts(ctx, siteID, lessonID, repositories.AttemptFilters{})
	if err != nil {
		return storageErr("list attempts", err)
	}
	if len(attempts) == 0 {
		return nil
	}
	result.CourseID = attempts[0].CourseID

	if err := s.fetchRemote(ctx, siteID, lessonID, remote); err != nil {
		return err
	}
	current := remote.info.AttemptsCount

	var pending []*models.PageAttempt
	stale := make(map[int]bool)
	for _, attempt := range attempts {
		if attempt.Retake != current {
			stale[attempt.Retake] = true
			continue
		}
		pending = append(pending, attempt)
	}

	if len(stale) > 0 {
		for retake := range stale {
			if err := s.repo.Attempt().DeleteRetakeAttempts(ctx, nil, siteID, lessonID, retake); err != nil {
				return storageErr("delete stale attempts", err)
			}
		}
		result.Warnings = append(result.Warnings, warningRetakeFinished)
		s.logger.Info("discarded stale attempts",
			"site_id", siteID,
			"lesson_id", lessonID,
			"retakes", len(stale))
	}

	// Attempts are already ordered by timemodified; order matters because
	// the LMS replays navigation as each page is processed.
	for _, attempt := range pending {
		if err := s.sendAttempt(ctx, attempt, remote.password, result); err != nil {
			return err
		}
	}
	return nil
}

// sendAttempt replays one recorded page submission. The LMS rejecting it
// is final (delete and warn); a transport failure aborts the run and
// keeps the attempt for next time.
func (s *syncService) sendAttempt(ctx context.Context, attempt *models.PageAttempt, password string, result *SyncResult) error {
	key := repositories.AttemptKey{
		SiteID:       attempt.SiteID,
		LessonID:     attempt.LessonID,
		Retake:       attempt.Retake,
		PageID:       attempt.PageID,
		Timemodified: attempt.Timemodified,
	}

	fields, err := models.DecodeFormFields(attempt.Data)
	if err != nil {
		// Unreadable rows cannot ever be sent. Drop them.
		s.logger.Warn("discarding unreadable attempt", "error", err, "page_id", attempt.PageID)
		result.Warnings = append(result.Warnings, "A stored answer could not be read and was discarded.")
		if derr := s.repo.Attempt().Delete(ctx, nil, key); derr != nil {
			return storageErr("delete attempt", derr)
		}
		return nil
	}

	_, err = s.client.ProcessPage(ctx, attempt.SiteID, attempt.LessonID, attempt.PageID, fields, password)
	switch {
	case err == nil:
		result.Updated = true
	case ws.IsBusinessRejection(err):
		result.Warnings = append(result.Warnings, err.Error())
		result.Updated = true
		s.logger.Info("attempt rejected by site",
			"site_id", attempt.SiteID,
			"lesson_id", attempt.LessonID,
			"page_id", attempt.PageID,
			"error", err)
	default:
		return err
	}

	if err := s.repo.Attempt().Delete(ctx, nil, key); err != nil {
		return storageErr("delete attempt", err)
	}
	return nil
}

// syncRetake finishes the retake on the LMS when it was finished offline.
// The local retake row is always removed once the outcome is known.
func (s *syncService) syncRetake(ctx context.Context, siteID string, lessonID int64, remote *remoteContext, ignoreBlock bool, result *SyncResult) error {
	retake, err := s.repo.Retake().Get(ctx, siteID, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil
		}
		return storageErr("get retake", err)
	}
	if result.CourseID == 0 {
		result.CourseID = retake.CourseID
	}

	if !retake.Finished {
		// Unfinished retakes carry no final state; the attempts above
		// already covered everything there was to send.
		if err := s.repo.Retake().Delete(ctx, nil, siteID, lessonID); err != nil {
			return storageErr("delete retake", err)
		}
		return nil
	}

	if err := s.fetchRemote(ctx, siteID, lessonID, remote); err != nil {
		return err
	}

	if retake.Retake != remote.info.AttemptsCount {
		if len(result.Warnings) == 0 {
			result.Warnings = append(result.Warnings, warningRetakeFinished)
		}
		if err := s.repo.Retake().Delete(ctx, nil, siteID, lessonID); err != nil {
			return storageErr("delete retake", err)
		}
		return nil
	}

	response, err := s.client.FinishRetake(ctx, siteID, lessonID, remote.password, retake.OutOfTime)
	switch {
	case err == nil:
		result.Updated = true
		if !ignoreBlock {
			if pageID, ok := response.ReviewPageID(); ok {
				marker := &models.RetakeFinishedInSync{
					SiteID:       siteID,
					LessonID:     lessonID,
					Retake:       retake.Retake,
					PageID:       pageID,
					Timefinished: time.Now().Unix(),
				}
				if merr := s.repo.FinishedMarker().Set(ctx, nil, marker); merr != nil {
					return storageErr("set finished marker", merr)
				}
			}
		}
	case ws.IsBusinessRejection(err):
		result.Warnings = append(result.Warnings, err.Error())
		result.Updated = true
		s.logger.Info("finish rejected by site",
			"site_id", siteID,
			"lesson_id", lessonID,
			"error", err)
	default:
		return err
	}

	if err := s.repo.Retake().Delete(ctx, nil, siteID, lessonID); err != nil {
		return storageErr("delete retake", err)
	}
	return nil
}

// replayViewLogs forwards queued page-view logs, best-effort. A transport
// failure leaves the remainder queued for the next run.
func (s *syncService) replayViewLogs(ctx context.Context, siteID string, lessonID int64) {
	logs, err := s.repo.ViewLog().ListForLesson(ctx, siteID, lessonID)
	if err != nil {
		s.logger.Warn("failed to list view logs", "error", err, "lesson_id", lessonID)
		return
	}
	if len(logs) == 0 {
		return
	}

	var sent []uint
	for _, log := range logs {
		if err := s.client.LogPageViewed(ctx, siteID, log.LessonID, log.PageID, log.Password); err != nil {
			if ws.IsTransportError(err) {
				break
			}
			// The site refused the log; retrying will never help.
		}
		sent = append(sent, log.ID)
	}
	if len(sent) == 0 {
		return
	}
	if err := s.repo.ViewLog().Delete(ctx, nil, sent); err != nil {
		s.logger.Warn("failed to clear view logs", "error", err, "lesson_id", lessonID)
	}
}

// refreshLessonData repopulates the cache after a sync changed remote
// state, so the next read does not pay the fetch. Best-effort.
func (s *syncService) refreshLessonData(ctx context.Context, siteID string, lessonID int64, password string) {
	if s.cache == nil {
		return
	}
	key := cache.LessonKey(siteID, lessonID)

	lesson, err := s.client.GetLessonByID(ctx, siteID, lessonID)
	if err != nil {
		s.logger.Debug("lesson prefetch failed", "error", err, "lesson_id", lessonID)
		return
	}
	if err := s.cache.Lesson.Set(ctx, key, lesson, cache.LessonCacheConfig.TTL); err != nil {
		s.logger.Debug("lesson cache set failed", "error", err, "lesson_id", lessonID)
	}

	pages, err := s.client.GetPages(ctx, siteID, lessonID, password)
	if err == nil {
		if err := s.cache.Pages.Set(ctx, key, pages, cache.PagesCacheConfig.TTL); err != nil {
			s.logger.Debug("pages cache set failed", "error", err, "lesson_id", lessonID)
		}
	}

	info, err := s.client.GetAccessInformation(ctx, siteID, lessonID)
	if err == nil {
		if err := s.cache.Access.Set(ctx, key, info, cache.AccessCacheConfig.TTL); err != nil {
			s.logger.Debug("access cache set failed", "error", err, "lesson_id", lessonID)
		}
	}
}
