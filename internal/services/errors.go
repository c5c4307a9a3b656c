package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services.
var (
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrRetakeNotFound  = errors.New("retake not found")
	ErrPageNotFound    = errors.New("page not found")

	// ErrOffline is returned when a phase needs connectivity and none is
	// available.
	ErrOffline = errors.New("network connection required")

	// ErrLoginFailed is returned when the stored password (or a prompted
	// one) was rejected by the remote.
	ErrLoginFailed = errors.New("lesson password rejected")

	// ErrPasswordRequired is returned when a password is needed and no
	// stored password or prompt is available.
	ErrPasswordRequired = errors.New("lesson password required")
)

// SyncBlockedError is returned when a sync is requested while the lesson
// is blocked, typically because a UI holds the retake open. Nothing has
// been synced when this is returned.
type SyncBlockedError struct {
	SiteID   string
	LessonID int64
}

func (e *SyncBlockedError) Error() string {
	return fmt.Sprintf("sync blocked for lesson %d on site %s", e.LessonID, e.SiteID)
}

// IsSyncBlocked reports whether err is a blocked-sync error.
func IsSyncBlocked(err error) bool {
	var sbe *SyncBlockedError
	return errors.As(err, &sbe)
}

// PreventedAccessError carries the remote's reason for denying lesson
// access.
type PreventedAccessError struct {
	Reason  string
	Message string
}

func (e *PreventedAccessError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("access prevented (%s): %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("access prevented: %s", e.Reason)
}

// StorageError wraps a failure of the local offline store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
