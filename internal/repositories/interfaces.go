package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

// AttemptFilters narrows attempt queries. Zero values mean "any".
type AttemptFilters struct {
	Retake    *int   `json:"retake"`
	PageID    *int64 `json:"page_id"`
	SortBy    string `json:"sort_by"`    // "timemodified"
	SortOrder string `json:"sort_order"` // "asc", "desc"
}

// AttemptKey identifies a single stored attempt row.
type AttemptKey struct {
	SiteID       string `json:"site_id"`
	LessonID     int64  `json:"lesson_id"`
	Retake       int    `json:"retake"`
	PageID       int64  `json:"page_id"`
	Timemodified int64  `json:"timemodified"`
}

// ===== REPOSITORY INTERFACES =====

// AttemptRepository stores offline page attempts. All list operations
// return attempts ordered by Timemodified ascending unless filters say
// otherwise.
type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.PageAttempt) error
	GetLessonAttempts(ctx context.Context, siteID string, lessonID int64, filters AttemptFilters) ([]*models.PageAttempt, error)
	GetRetakeAttempts(ctx context.Context, siteID string, lessonID int64, retake int) ([]*models.PageAttempt, error)
	GetPageAttempts(ctx context.Context, siteID string, lessonID int64, retake int, pageID int64) ([]*models.PageAttempt, error)
	Delete(ctx context.Context, tx *gorm.DB, key AttemptKey) error
	DeleteRetakeAttempts(ctx context.Context, tx *gorm.DB, siteID string, lessonID int64, retake int) error
	HasAttempts(ctx context.Context, siteID string, lessonID int64) (bool, error)
	LessonIDs(ctx context.Context, siteID string) ([]int64, error)
	SiteIDs(ctx context.Context) ([]string, error)
}

// RetakeRepository stores the per-lesson offline retake row.
type RetakeRepository interface {
	Get(ctx context.Context, siteID string, lessonID int64) (*models.RetakeState, error)
	Save(ctx context.Context, tx *gorm.DB, retake *models.RetakeState) error
	Delete(ctx context.Context, tx *gorm.DB, siteID string, lessonID int64) error
	LessonIDs(ctx context.Context, siteID string) ([]int64, error)
}

// FinishedMarkerRepository stores the finished-during-sync soft markers.
type FinishedMarkerRepository interface {
	Get(ctx context.Context, siteID string, lessonID int64) (*models.RetakeFinishedInSync, error)
	Set(ctx context.Context, tx *gorm.DB, marker *models.RetakeFinishedInSync) error
	Delete(ctx context.Context, tx *gorm.DB, siteID string, lessonID int64) error
}

// PasswordRepository stores lesson passwords for reuse during sync.
type PasswordRepository interface {
	Get(ctx context.Context, siteID string, lessonID int64) (*models.StoredPassword, error)
	Store(ctx context.Context, tx *gorm.DB, password *models.StoredPassword) error
	Remove(ctx context.Context, tx *gorm.DB, siteID string, lessonID int64) error
}

// SyncRecordRepository stores last-sync bookkeeping per lesson.
type SyncRecordRepository interface {
	Get(ctx context.Context, siteID string, lessonID int64) (*models.SyncRecord, error)
	Save(ctx context.Context, tx *gorm.DB, record *models.SyncRecord) error
}

// ViewLogRepository queues page-view log calls for best-effort replay.
type ViewLogRepository interface {
	Append(ctx context.Context, tx *gorm.DB, log *models.ViewLog) error
	ListForLesson(ctx context.Context, siteID string, lessonID int64) ([]*models.ViewLog, error)
	Delete(ctx context.Context, tx *gorm.DB, ids []uint) error
}
