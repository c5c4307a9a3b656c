package events

import (
	"time"
)

// Event is the envelope every published event travels in.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

const (
	EventSource  = "lesson-sync-service"
	EventVersion = "1.0"
)

// Event types
const (
	TypeSyncStarted   = "lesson.sync.started"
	TypeSyncCompleted = "lesson.sync.completed"
	TypeSyncFailed    = "lesson.sync.failed"
	TypeAutoSynced    = "lesson.sync.auto_synced"
)

// SyncStartedEvent is published when a sync run begins.
type SyncStartedEvent struct {
	SiteID   string `json:"site_id"`
	LessonID int64  `json:"lesson_id"`
}

// SyncCompletedEvent is published when a manually triggered sync run
// finishes.
type SyncCompletedEvent struct {
	SiteID   string   `json:"site_id"`
	LessonID int64    `json:"lesson_id"`
	Updated  bool     `json:"updated"`
	Warnings []string `json:"warnings"`
}

// SyncFailedEvent is published when a sync run aborts.
type SyncFailedEvent struct {
	SiteID   string `json:"site_id"`
	LessonID int64  `json:"lesson_id"`
	Error    string `json:"error"`
}

// AutoSyncedEvent is published per lesson updated by a scheduled
// sync-all run, so UIs can refresh and surface warnings.
type AutoSyncedEvent struct {
	SiteID   string   `json:"site_id"`
	LessonID int64    `json:"lesson_id"`
	Warnings []string `json:"warnings"`
}
