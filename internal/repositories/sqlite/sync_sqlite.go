package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
)

type SyncRecordSQLite struct {
	db *gorm.DB
}

func NewSyncRecordSQLite(db *gorm.DB) repositories.SyncRecordRepository {
	return &SyncRecordSQLite{db: db}
}

func (s *SyncRecordSQLite) Get(ctx context.Context, siteID string, lessonID int64) (*models.SyncRecord, error) {
	var record models.SyncRecord
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *SyncRecordSQLite) Save(ctx context.Context, tx *gorm.DB, record *models.SyncRecord) error {
	db := getDB(s.db, tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "site_id"}, {Name: "lesson_id"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to save sync record: %w", err)
	}
	return nil
}

type ViewLogSQLite struct {
	db *gorm.DB
}

func NewViewLogSQLite(db *gorm.DB) repositories.ViewLogRepository {
	return &ViewLogSQLite{db: db}
}

func (v *ViewLogSQLite) Append(ctx context.Context, tx *gorm.DB, log *models.ViewLog) error {
	db := getDB(v.db, tx)
	if err := db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to queue view log: %w", err)
	}
	return nil
}

func (v *ViewLogSQLite) ListForLesson(ctx context.Context, siteID string, lessonID int64) ([]*models.ViewLog, error) {
	var logs []*models.ViewLog
	err := v.db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		Order("time ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list view logs: %w", err)
	}
	return logs, nil
}

func (v *ViewLogSQLite) Delete(ctx context.Context, tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	db := getDB(v.db, tx)
	result := db.WithContext(ctx).Delete(&models.ViewLog{}, ids)
	if result.Error != nil {
		return fmt.Errorf("failed to delete view logs: %w", result.Error)
	}
	return nil
}
