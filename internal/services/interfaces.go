package services

import (
	"context"
	"time"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type ProcessPageRequest = validator.ProcessPageRequest
type FinishRetakeRequest = validator.FinishRetakeRequest

// CheckAnswerResult is the outcome of checking one page submission
// locally.
type CheckAnswerResult struct {
	AnswerID        int64  `json:"answer_id"`
	NoAnswer        bool   `json:"no_answer"`
	CorrectAnswer   bool   `json:"correct_answer"`
	IsEssayQuestion bool   `json:"is_essay_question"`
	Response        string `json:"response"`
	NewPageID       int64  `json:"new_page_id"`
	StudentAnswer   string `json:"student_answer"`
	UserResponse    any    `json:"user_response,omitempty"`
	Feedback        string `json:"feedback,omitempty"`
	ImmediateJump   bool   `json:"immediate_jump"`
}

// ProcessPageResult is what an offline page submission produces.
type ProcessPageResult struct {
	Check              *CheckAnswerResult `json:"check"`
	NewPageID          int64              `json:"new_page_id"`
	Progress           int                `json:"progress"`
	OngoingScore       string             `json:"ongoing_score,omitempty"`
	AttemptsRemaining  int                `json:"attempts_remaining"`
	MaxAttemptsReached bool               `json:"max_attempts_reached"`
}

// LessonContext bundles the downloaded lesson data every calculation
// runs against.
type LessonContext struct {
	Lesson     *models.Lesson
	AccessInfo *models.AccessInfo
	Pages      map[int64]*models.PageWithAnswers
	Jumps      models.PageJumps
}

// Page returns the context page by id, or nil.
func (lc *LessonContext) Page(id int64) *models.PageWithAnswers {
	return lc.Pages[id]
}

// SyncOptions tunes one sync run.
type SyncOptions struct {
	// IgnoreBlock skips the block registry check and suppresses the
	// finished-in-sync marker.
	IgnoreBlock bool
}

// SyncState names the synchronizer's state machine positions.
type SyncState string

const (
	SyncStateIdle            SyncState = "idle"
	SyncStateCheckingBlock   SyncState = "checking_block"
	SyncStateSyncingAttempts SyncState = "syncing_attempts"
	SyncStateSyncingRetake   SyncState = "syncing_retake"
	SyncStateDone            SyncState = "done"
	SyncStateFailed          SyncState = "failed"
)

// SyncResult is the outcome of one sync run.
type SyncResult struct {
	SiteID   string    `json:"site_id"`
	LessonID int64     `json:"lesson_id"`
	Warnings []string  `json:"warnings"`
	Updated  bool      `json:"updated"`
	CourseID int64     `json:"course_id,omitempty"`
	State    SyncState `json:"state"`
	Time     time.Time `json:"time"`
}

// ===== SERVICE INTERFACES =====

// LessonService holds the pure lesson calculations: answer checking,
// navigation, progress and grading. It never touches storage or the
// network.
type LessonService interface {
	CheckAnswer(lc *LessonContext, pageID int64, data models.FormData) (*CheckAnswerResult, error)
	NewPageID(lc *LessonContext, pageID, jumpTo int64) int64
	JumpToIsCorrect(lc *LessonContext, pageID, jumpTo int64) bool

	CalculateProgress(lc *LessonContext, viewedPageIDs []int64, review bool) (int, error)
	Grade(lc *LessonContext, attempts []*models.PageAttempt) (*models.GradeResult, error)
	LastPageSeen(lc *LessonContext, attempts []*models.PageAttempt, lastQuestionPageID int64) int64
	DisplayTeacherWarning(lc *LessonContext) bool
	OngoingScoreMessage(lc *LessonContext, grade *models.GradeResult) string
	EOLPageData(lc *LessonContext, attempts []*models.PageAttempt, viewedPageIDs []int64) (*models.EOLPageData, error)
}

// OfflineService records lesson activity into the offline store.
type OfflineService interface {
	ProcessPage(ctx context.Context, req *ProcessPageRequest, lc *LessonContext, data models.FormData) (*ProcessPageResult, error)
	FinishRetake(ctx context.Context, req *FinishRetakeRequest, lc *LessonContext) (*models.EOLPageData, error)

	GetRetake(ctx context.Context, siteID string, lessonID int64) (*models.RetakeState, error)
	GetRetakeAttempts(ctx context.Context, siteID string, lessonID int64, retake int) ([]*models.PageAttempt, error)
	GetLastQuestionPageAttempt(ctx context.Context, siteID string, lessonID int64) (*models.PageAttempt, error)
	HasOfflineData(ctx context.Context, siteID string, lessonID int64) (bool, error)
	GetAllLessonsWithData(ctx context.Context, siteID string) ([]int64, error)

	QueueViewLog(ctx context.Context, siteID string, lessonID, pageID int64, password string) error
}

// PasswordService is the access gate: prevent-access evaluation and the
// stored password lifecycle.
type PasswordService interface {
	GetPreventAccessReason(info *models.AccessInfo, ignorePassword, isReview bool) *models.PreventAccessReason
	ResolvePassword(ctx context.Context, siteID string, lesson *models.Lesson, info *models.AccessInfo, askFn func(ctx context.Context) (string, error)) (string, error)
	ValidatePassword(ctx context.Context, siteID string, lessonID int64, password string) (*models.Lesson, error)

	GetStoredPassword(ctx context.Context, siteID string, lessonID int64) (string, error)
	StorePassword(ctx context.Context, siteID string, lessonID int64, password string) error
	RemoveStoredPassword(ctx context.Context, siteID string, lessonID int64) error
}

// SyncService reconciles the offline store with the remote service.
type SyncService interface {
	SyncLesson(ctx context.Context, siteID string, lessonID int64, opts SyncOptions) (*SyncResult, error)
	SyncAllLessons(ctx context.Context, siteID string) ([]*SyncResult, error)
	SyncAllSites(ctx context.Context) (map[string][]*SyncResult, error)

	Block(siteID string, lessonID int64)
	Unblock(siteID string, lessonID int64)
	IsBlocked(siteID string, lessonID int64) bool

	State(siteID string, lessonID int64) SyncState
	LastSync(ctx context.Context, siteID string, lessonID int64) (*models.SyncResultSummary, error)

	GetRetakeFinishedInSync(ctx context.Context, siteID string, lessonID int64) (*models.RetakeFinishedInSync, error)
	DeleteRetakeFinishedInSync(ctx context.Context, siteID string, lessonID int64) error
}

// ServiceManager wires the services together and owns their lifecycle.
type ServiceManager interface {
	Lesson() LessonService
	Offline() OfflineService
	Password() PasswordService
	Sync() SyncService

	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}
