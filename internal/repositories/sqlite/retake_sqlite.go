package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
)

type RetakeSQLite struct {
	db *gorm.DB
}

func NewRetakeSQLite(db *gorm.DB) repositories.RetakeRepository {
	return &RetakeSQLite{db: db}
}

func (r *RetakeSQLite) Get(ctx context.Context, siteID string, lessonID int64) (*models.RetakeState, error) {
	var retake models.RetakeState
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		First(&retake).Error
	if err != nil {
		return nil, err
	}
	return &retake, nil
}

// Save upserts the single retake row for a lesson. A different retake
// number simply replaces the previous row's contents.
func (r *RetakeSQLite) Save(ctx context.Context, tx *gorm.DB, retake *models.RetakeState) error {
	db := getDB(r.db, tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "site_id"}, {Name: "lesson_id"}},
			UpdateAll: true,
		}).
		Create(retake).Error
	if err != nil {
		return fmt.Errorf("failed to save retake: %w", err)
	}
	return nil
}

func (r *RetakeSQLite) Delete(ctx context.Context, tx *gorm.DB, siteID string, lessonID int64) error {
	db := getDB(r.db, tx)
	result := db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		Delete(&models.RetakeState{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete retake: %w", result.Error)
	}
	return nil
}

func (r *RetakeSQLite) LessonIDs(ctx context.Context, siteID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.RetakeState{}).
		Where("site_id = ?", siteID).
		Distinct("lesson_id").
		Pluck("lesson_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons with retakes: %w", err)
	}
	return ids, nil
}

type FinishedMarkerSQLite struct {
	db *gorm.DB
}

func NewFinishedMarkerSQLite(db *gorm.DB) repositories.FinishedMarkerRepository {
	return &FinishedMarkerSQLite{db: db}
}

func (m *FinishedMarkerSQLite) Get(ctx context.Context, siteID string, lessonID int64) (*models.RetakeFinishedInSync, error) {
	var marker models.RetakeFinishedInSync
	err := m.db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		First(&marker).Error
	if err != nil {
		return nil, err
	}
	return &marker, nil
}

func (m *FinishedMarkerSQLite) Set(ctx context.Context, tx *gorm.DB, marker *models.RetakeFinishedInSync) error {
	db := getDB(m.db, tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "site_id"}, {Name: "lesson_id"}},
			UpdateAll: true,
		}).
		Create(marker).Error
	if err != nil {
		return fmt.Errorf("failed to set finished marker: %w", err)
	}
	return nil
}

func (m *FinishedMarkerSQLite) Delete(ctx context.Context, tx *gorm.DB, siteID string, lessonID int64) error {
	db := getDB(m.db, tx)
	result := db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		Delete(&models.RetakeFinishedInSync{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete finished marker: %w", result.Error)
	}
	return nil
}
