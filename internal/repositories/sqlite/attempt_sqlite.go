package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
)

type AttemptSQLite struct {
	db *gorm.DB
}

func NewAttemptSQLite(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptSQLite{db: db}
}

func (a *AttemptSQLite) Create(ctx context.Context, tx *gorm.DB, attempt *models.PageAttempt) error {
	db := getDB(a.db, tx)
	// Re-answering the same page within one second replaces the row.
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(attempt).Error
	if err != nil {
		return fmt.Errorf("failed to store attempt: %w", err)
	}
	return nil
}

func (a *AttemptSQLite) GetLessonAttempts(ctx context.Context, siteID string, lessonID int64, filters repositories.AttemptFilters) ([]*models.PageAttempt, error) {
	var attempts []*models.PageAttempt

	query := a.db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID)
	if filters.Retake != nil {
		query = query.Where("retake = ?", *filters.Retake)
	}
	if filters.PageID != nil {
		query = query.Where("page_id = ?", *filters.PageID)
	}
	query = applySortAttempt(query, filters)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptSQLite) GetRetakeAttempts(ctx context.Context, siteID string, lessonID int64, retake int) ([]*models.PageAttempt, error) {
	return a.GetLessonAttempts(ctx, siteID, lessonID, repositories.AttemptFilters{Retake: &retake})
}

func (a *AttemptSQLite) GetPageAttempts(ctx context.Context, siteID string, lessonID int64, retake int, pageID int64) ([]*models.PageAttempt, error) {
	return a.GetLessonAttempts(ctx, siteID, lessonID, repositories.AttemptFilters{Retake: &retake, PageID: &pageID})
}

func (a *AttemptSQLite) Delete(ctx context.Context, tx *gorm.DB, key repositories.AttemptKey) error {
	db := getDB(a.db, tx)
	result := db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ? AND retake = ? AND page_id = ? AND timemodified = ?",
			key.SiteID, key.LessonID, key.Retake, key.PageID, key.Timemodified).
		Delete(&models.PageAttempt{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete attempt: %w", result.Error)
	}
	return nil
}

func (a *AttemptSQLite) DeleteRetakeAttempts(ctx context.Context, tx *gorm.DB, siteID string, lessonID int64, retake int) error {
	db := getDB(a.db, tx)
	result := db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ? AND retake = ?", siteID, lessonID, retake).
		Delete(&models.PageAttempt{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete retake attempts: %w", result.Error)
	}
	return nil
}

func (a *AttemptSQLite) HasAttempts(ctx context.Context, siteID string, lessonID int64) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.PageAttempt{}).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count > 0, nil
}

func (a *AttemptSQLite) LessonIDs(ctx context.Context, siteID string) ([]int64, error) {
	var ids []int64
	err := a.db.WithContext(ctx).
		Model(&models.PageAttempt{}).
		Where("site_id = ?", siteID).
		Distinct("lesson_id").
		Pluck("lesson_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons with attempts: %w", err)
	}
	return ids, nil
}

func (a *AttemptSQLite) SiteIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := a.db.WithContext(ctx).
		Model(&models.PageAttempt{}).
		Distinct("site_id").
		Pluck("site_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sites with attempts: %w", err)
	}
	return ids, nil
}

func applySortAttempt(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	sortBy := filters.SortBy
	if sortBy == "" {
		sortBy = "timemodified"
	}
	order := "ASC"
	if filters.SortOrder == "desc" {
		order = "DESC"
	}
	return query.Order(fmt.Sprintf("%s %s", sortBy, order))
}
