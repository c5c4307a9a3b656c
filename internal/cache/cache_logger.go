package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateLessonCache invalidates all cached payloads for one lesson.
func InvalidateLessonCache(ctx context.Context, cm *CacheManager, siteID string, lessonID int64) {
	key := LessonKey(siteID, lessonID)
	SafeDelete(ctx, cm.Lesson, key)
	SafeDelete(ctx, cm.Pages, key)
	SafeDelete(ctx, cm.Access, key)
	SafeInvalidatePattern(ctx, cm.Fast, fmt.Sprintf("%s:*", key))
}

// InvalidatePasswordedLesson drops the cached lesson-with-password
// payload after a password turned out to be wrong.
func InvalidatePasswordedLesson(ctx context.Context, cm *CacheManager, siteID string, lessonID int64) {
	SafeDelete(ctx, cm.Lesson, fmt.Sprintf("%s:password", LessonKey(siteID, lessonID)))
}
