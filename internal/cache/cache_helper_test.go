package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCacheManager(t *testing.T) (*CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheManager(client), mr
}

type cachedLesson struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestCacheHelperRoundTrip(t *testing.T) {
	cm, _ := newTestCacheManager(t)
	ctx := context.Background()
	key := LessonKey("site1", 7)

	want := cachedLesson{ID: 7, Name: "Pointers and slices"}
	if err := cm.Lesson.Set(ctx, key, want, LessonCacheConfig.TTL); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got cachedLesson
	if err := cm.Lesson.Get(ctx, key, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	exists, err := cm.Lesson.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("expected key to exist")
	}

	if err := cm.Lesson.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := cm.Lesson.Get(ctx, key, &got); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("expected ErrCacheNotFound after delete, got %v", err)
	}
}

func TestCacheHelperExpiry(t *testing.T) {
	cm, mr := newTestCacheManager(t)
	ctx := context.Background()
	key := LessonKey("site1", 7)

	if err := cm.Access.Set(ctx, key, cachedLesson{ID: 7}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	var got cachedLesson
	if err := cm.Access.Get(ctx, key, &got); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("expected ErrCacheNotFound after TTL, got %v", err)
	}
}

func TestInvalidateLessonCache(t *testing.T) {
	cm, _ := newTestCacheManager(t)
	ctx := context.Background()

	key := LessonKey("site1", 7)
	otherKey := LessonKey("site1", 8)
	for _, helper := range []*CacheHelper{cm.Lesson, cm.Pages, cm.Access} {
		if err := helper.Set(ctx, key, cachedLesson{ID: 7}, time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := helper.Set(ctx, otherKey, cachedLesson{ID: 8}, time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	InvalidateLessonCache(ctx, cm, "site1", 7)

	var got cachedLesson
	for _, helper := range []*CacheHelper{cm.Lesson, cm.Pages, cm.Access} {
		if err := helper.Get(ctx, key, &got); !errors.Is(err, ErrCacheNotFound) {
			t.Errorf("expected lesson 7 evicted, got %v", err)
		}
		if err := helper.Get(ctx, otherKey, &got); err != nil {
			t.Errorf("lesson 8 should survive, got %v", err)
		}
	}
}

func TestInvalidatePattern(t *testing.T) {
	cm, _ := newTestCacheManager(t)
	ctx := context.Background()

	if err := cm.Fast.Set(ctx, "site1:7:grade", 42, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cm.Fast.Set(ctx, "site1:7:progress", 80, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cm.Fast.Set(ctx, "site2:7:grade", 10, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := cm.Fast.InvalidatePattern(ctx, "site1:7:*"); err != nil {
		t.Fatalf("InvalidatePattern: %v", err)
	}

	var n int
	if err := cm.Fast.Get(ctx, "site1:7:grade", &n); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("expected site1 keys evicted, got %v", err)
	}
	if err := cm.Fast.Get(ctx, "site2:7:grade", &n); err != nil {
		t.Errorf("site2 key should survive, got %v", err)
	}
}

func TestCacheDegradesWithoutRedis(t *testing.T) {
	cm := NewCacheManager(nil)
	ctx := context.Background()

	if err := cm.Lesson.Set(ctx, "k", cachedLesson{}, time.Minute); err != nil {
		t.Errorf("Set without client should be a no-op, got %v", err)
	}

	var got cachedLesson
	if err := cm.Lesson.Get(ctx, "k", &got); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("expected ErrCacheNotAvailable, got %v", err)
	}

	if err := cm.HealthCheck(ctx); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("expected ErrCacheNotAvailable from health check, got %v", err)
	}
}
