package sqlite

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
)

// An in-memory store must pin the pool to one connection, otherwise a
// transaction can land on a fresh connection without the migrated
// schema.
func TestOpenStoreInMemorySharesSchema(t *testing.T) {
	db, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	manager := NewRepositoryManager(RepositoryConfig{DB: db})
	if err := manager.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	repo := manager.GetRepository()
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	ctx := context.Background()
	err = repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		return repo.Retake().Save(ctx, tx, &models.RetakeState{
			SiteID:   "site1",
			LessonID: 1,
			Retake:   0,
		})
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}

	retake, err := repo.Retake().Get(ctx, "site1", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if retake.LessonID != 1 {
		t.Errorf("lesson id = %d, want 1", retake.LessonID)
	}

	if err := repo.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
