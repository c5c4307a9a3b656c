package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/lesson-sync-service/internal/cache"
	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
	"github.com/SAP-F-2025/lesson-sync-service/internal/ws"
)

// passwordService implements the access gate.
type passwordService struct {
	repo   repositories.Repository
	client ws.LessonWebService
	cache  *cache.CacheManager
	logger *slog.Logger
}

// NewPasswordService creates the password / access gate service.
func NewPasswordService(repo repositories.Repository, client ws.LessonWebService, cacheManager *cache.CacheManager, logger *slog.Logger) PasswordService {
	return &passwordService{
		repo:   repo,
		client: client,
		cache:  cacheManager,
		logger: logger,
	}
}

// GetPreventAccessReason picks the reason that should be surfaced when
// several apply. Open/close windows always win; the no-retake reason is
// skipped in review mode.
func (s *passwordService) GetPreventAccessReason(info *models.AccessInfo, ignorePassword, isReview bool) *models.PreventAccessReason {
	if info == nil {
		return nil
	}

	var result *models.PreventAccessReason
	for i := range info.PreventAccessReasons {
		reason := info.PreventAccessReasons[i]
		switch reason.Reason {
		case models.PreventReasonNotOpen, models.PreventReasonClosed:
			return &reason
		case models.PreventReasonPassword:
			if ignorePassword {
				continue
			}
		case models.PreventReasonNoRetake:
			if isReview {
				continue
			}
		}
		if result == nil {
			result = &reason
		}
	}
	return result
}

// ResolvePassword returns the password that grants access to the lesson,
// trying the stored one first and falling back to the prompt callback.
// Lessons without access barriers resolve to an empty password.
func (s *passwordService) ResolvePassword(ctx context.Context, siteID string, lesson *models.Lesson, info *models.AccessInfo, askFn func(ctx context.Context) (string, error)) (string, error) {
	if info == nil || len(info.PreventAccessReasons) == 0 {
		return "", nil
	}

	if !info.IsPasswordProtected() {
		reason := s.GetPreventAccessReason(info, false, false)
		return "", &PreventedAccessError{Reason: reason.Reason, Message: reason.Message}
	}

	if stored, err := s.GetStoredPassword(ctx, siteID, lesson.ID); err == nil {
		if _, err := s.ValidatePassword(ctx, siteID, lesson.ID, stored); err == nil {
			return stored, nil
		} else if ws.IsTransportError(err) {
			return "", err
		}
		// Stored password is no longer valid.
	}

	if askFn == nil {
		return "", ErrPasswordRequired
	}

	password, err := askFn(ctx)
	if err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	if _, err := s.ValidatePassword(ctx, siteID, lesson.ID, password); err != nil {
		return "", err
	}
	return password, nil
}

// ValidatePassword checks a password against the remote. A lesson payload
// without the ongoing marker means the password was rejected; the stored
// copy and the cached passworded lesson are dropped so the next attempt
// starts clean.
func (s *passwordService) ValidatePassword(ctx context.Context, siteID string, lessonID int64, password string) (*models.Lesson, error) {
	lesson, err := s.client.GetLessonWithPassword(ctx, siteID, lessonID, password)
	if err != nil {
		return nil, err
	}

	if lesson.Ongoing == nil {
		if err := s.RemoveStoredPassword(ctx, siteID, lessonID); err != nil {
			s.logger.Warn("failed to drop rejected password", "error", err, "lesson_id", lessonID)
		}
		if s.cache != nil {
			cache.InvalidatePasswordedLesson(ctx, s.cache, siteID, lessonID)
		}
		return nil, ErrLoginFailed
	}

	if err := s.StorePassword(ctx, siteID, lessonID, password); err != nil {
		s.logger.Warn("failed to store valid password", "error", err, "lesson_id", lessonID)
	}
	return lesson, nil
}

func (s *passwordService) GetStoredPassword(ctx context.Context, siteID string, lessonID int64) (string, error) {
	stored, err := s.repo.Password().Get(ctx, siteID, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return "", ErrPasswordRequired
		}
		return "", storageErr("get password", err)
	}
	return stored.Password, nil
}

func (s *passwordService) StorePassword(ctx context.Context, siteID string, lessonID int64, password string) error {
	record := &models.StoredPassword{
		SiteID:       siteID,
		LessonID:     lessonID,
		Password:     password,
		Timemodified: time.Now().Unix(),
	}
	if err := s.repo.Password().Store(ctx, nil, record); err != nil {
		return storageErr("store password", err)
	}
	return nil
}

func (s *passwordService) RemoveStoredPassword(ctx context.Context, siteID string, lessonID int64) error {
	if err := s.repo.Password().Remove(ctx, nil, siteID, lessonID); err != nil {
		return storageErr("remove password", err)
	}
	return nil
}
