package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
)

// SQLiteRepository implements the main Repository interface over the
// local offline store.
type SQLiteRepository struct {
	db *gorm.DB

	// Repository instances
	attempt        repositories.AttemptRepository
	retake         repositories.RetakeRepository
	finishedMarker repositories.FinishedMarkerRepository
	password       repositories.PasswordRepository
	syncRecord     repositories.SyncRecordRepository
	viewLog        repositories.ViewLogRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB *gorm.DB
}

// OpenStore opens (or creates) the offline store database file. Use
// ":memory:" for tests.
func OpenStore(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open offline store: %w", err)
	}
	if strings.Contains(path, ":memory:") {
		// Each pooled connection gets its own in-memory database, so
		// keep the pool at one connection to share the schema.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open offline store: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewSQLiteRepository creates a new repository aggregate with all
// sub-repositories.
func NewSQLiteRepository(config RepositoryConfig) repositories.Repository {
	return &SQLiteRepository{
		db:             config.DB,
		attempt:        NewAttemptSQLite(config.DB),
		retake:         NewRetakeSQLite(config.DB),
		finishedMarker: NewFinishedMarkerSQLite(config.DB),
		password:       NewPasswordSQLite(config.DB),
		syncRecord:     NewSyncRecordSQLite(config.DB),
		viewLog:        NewViewLogSQLite(config.DB),
	}
}

func (r *SQLiteRepository) Attempt() repositories.AttemptRepository {
	return r.attempt
}

func (r *SQLiteRepository) Retake() repositories.RetakeRepository {
	return r.retake
}

func (r *SQLiteRepository) FinishedMarker() repositories.FinishedMarkerRepository {
	return r.finishedMarker
}

func (r *SQLiteRepository) Password() repositories.PasswordRepository {
	return r.password
}

func (r *SQLiteRepository) SyncRecord() repositories.SyncRecordRepository {
	return r.syncRecord
}

func (r *SQLiteRepository) ViewLog() repositories.ViewLogRepository {
	return r.viewLog
}

// WithTransaction runs fn inside a store transaction.
func (r *SQLiteRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// Manager implements RepositoryManager over the SQLite store.
type Manager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

// NewRepositoryManager creates a manager around an opened store.
func NewRepositoryManager(config RepositoryConfig) *Manager {
	return &Manager{config: config}
}

// Initialize migrates the store schema and builds the repositories.
func (m *Manager) Initialize() error {
	if err := m.config.DB.AutoMigrate(models.AllStoreModels()...); err != nil {
		return fmt.Errorf("migrate offline store: %w", err)
	}
	m.repo = NewSQLiteRepository(m.config)
	return nil
}

func (m *Manager) GetRepository() repositories.Repository {
	return m.repo
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.repo == nil {
		return fmt.Errorf("repositories not initialized")
	}
	return m.repo.Ping(ctx)
}

func (m *Manager) Shutdown(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	return m.repo.Close()
}

// getDB prefers the transaction handle when one is in flight.
func getDB(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
