package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository aggregates every offline-store repository.
type Repository interface {
	// Attempt domain
	Attempt() AttemptRepository
	Retake() RetakeRepository
	FinishedMarker() FinishedMarkerRepository

	// Access domain
	Password() PasswordRepository

	// Sync bookkeeping
	SyncRecord() SyncRecordRepository
	ViewLog() ViewLogRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories, running store migrations
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}

// ErrRecordNotFound is returned when a store lookup matches nothing.
var ErrRecordNotFound = gorm.ErrRecordNotFound

// IsNotFoundError reports whether err is a missing-record error from any
// repository.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
