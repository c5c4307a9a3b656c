package models

import (
	"time"

	"gorm.io/datatypes"
)

// PageAttempt is one offline answer submission for a lesson page, stored
// until it can be replayed against the remote service. Data holds the raw
// form fields exactly as the remote process-page operation expects them;
// they are encoded once at record time and replayed verbatim.
type PageAttempt struct {
	SiteID       string `json:"site_id" gorm:"primaryKey;size:64"`
	LessonID     int64  `json:"lesson_id" gorm:"primaryKey"`
	Retake       int    `json:"retake" gorm:"primaryKey"`
	PageID       int64  `json:"page_id" gorm:"primaryKey"`
	Timemodified int64  `json:"timemodified" gorm:"primaryKey"` // unix

	CourseID int64          `json:"course_id" gorm:"not null;index"`
	PageType int            `json:"page_type" gorm:"not null"`
	Data     datatypes.JSON `json:"data"`

	// Outcome of the local answer check, kept so the UI can rebuild the
	// session without re-checking.
	NewPageID  int64          `json:"new_page_id"`
	Correct    bool           `json:"correct"`
	AnswerID   int64          `json:"answer_id"`
	UserAnswer datatypes.JSON `json:"user_answer"`

	CreatedAt time.Time `json:"created_at"`
}

func (PageAttempt) TableName() string {
	return "lesson_page_attempts"
}

// RetakeState tracks the single in-progress (or finished, pending sync)
// offline retake for a lesson. One row per site+lesson; recording an
// attempt for a different retake number replaces the row.
type RetakeState struct {
	SiteID   string `json:"site_id" gorm:"primaryKey;size:64"`
	LessonID int64  `json:"lesson_id" gorm:"primaryKey"`

	Retake       int   `json:"retake" gorm:"not null"`
	CourseID     int64 `json:"course_id" gorm:"not null"`
	Finished     bool  `json:"finished"`
	OutOfTime    bool  `json:"out_of_time"`
	Timemodified int64 `json:"timemodified"` // unix

	// LastQuestionPageID is the most recent question page the user
	// answered, used to compute the resume point.
	LastQuestionPageID int64 `json:"last_question_page_id"`
}

func (RetakeState) TableName() string {
	return "lesson_retakes"
}

// RetakeFinishedInSync is a soft marker written when a finish is pushed to
// the remote while the activity may still be open in a UI. The UI consumes
// and deletes it when it notices.
type RetakeFinishedInSync struct {
	SiteID   string `json:"site_id" gorm:"primaryKey;size:64"`
	LessonID int64  `json:"lesson_id" gorm:"primaryKey"`

	Retake       int   `json:"retake" gorm:"not null"`
	PageID       int64 `json:"page_id"` // review page from the finish response
	Timefinished int64 `json:"timefinished"`
}

func (RetakeFinishedInSync) TableName() string {
	return "lesson_retakes_finished_sync"
}

// StoredPassword remembers the password that last granted access to a
// protected lesson so sync can reuse it without prompting.
type StoredPassword struct {
	SiteID   string `json:"site_id" gorm:"primaryKey;size:64"`
	LessonID int64  `json:"lesson_id" gorm:"primaryKey"`

	Password     string `json:"password" gorm:"not null"`
	Timemodified int64  `json:"timemodified"`
}

func (StoredPassword) TableName() string {
	return "lesson_passwords"
}

// SyncRecord stores when a lesson was last synced and the warnings the
// run produced.
type SyncRecord struct {
	SiteID   string `json:"site_id" gorm:"primaryKey;size:64"`
	LessonID int64  `json:"lesson_id" gorm:"primaryKey"`

	Time     time.Time      `json:"time"`
	Warnings datatypes.JSON `json:"warnings"` // []string
}

func (SyncRecord) TableName() string {
	return "lesson_sync_records"
}

// ViewLog is a queued "page viewed" log call, replayed best-effort at the
// start of a sync run.
type ViewLog struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	SiteID   string `json:"site_id" gorm:"not null;index;size:64"`
	LessonID int64  `json:"lesson_id" gorm:"not null;index"`
	PageID   int64  `json:"page_id"`
	Password string `json:"password"`
	Time     int64  `json:"time"`
}

func (ViewLog) TableName() string {
	return "lesson_view_logs"
}

// AllStoreModels lists every offline-store model for migration.
func AllStoreModels() []any {
	return []any{
		&PageAttempt{},
		&RetakeState{},
		&RetakeFinishedInSync{},
		&StoredPassword{},
		&SyncRecord{},
		&ViewLog{},
	}
}
