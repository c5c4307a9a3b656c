package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
)

type PasswordSQLite struct {
	db *gorm.DB
}

func NewPasswordSQLite(db *gorm.DB) repositories.PasswordRepository {
	return &PasswordSQLite{db: db}
}

func (p *PasswordSQLite) Get(ctx context.Context, siteID string, lessonID int64) (*models.StoredPassword, error) {
	var password models.StoredPassword
	err := p.db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		First(&password).Error
	if err != nil {
		return nil, err
	}
	return &password, nil
}

func (p *PasswordSQLite) Store(ctx context.Context, tx *gorm.DB, password *models.StoredPassword) error {
	db := getDB(p.db, tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "site_id"}, {Name: "lesson_id"}},
			UpdateAll: true,
		}).
		Create(password).Error
	if err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	return nil
}

func (p *PasswordSQLite) Remove(ctx context.Context, tx *gorm.DB, siteID string, lessonID int64) error {
	db := getDB(p.db, tx)
	result := db.WithContext(ctx).
		Where("site_id = ? AND lesson_id = ?", siteID, lessonID).
		Delete(&models.StoredPassword{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove password: %w", result.Error)
	}
	return nil
}
