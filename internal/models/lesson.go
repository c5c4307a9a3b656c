package models

import (
	"time"
)

// Jump targets used by lesson pages. Negative values are relative jumps
// resolved against the page graph at navigation time.
const (
	JumpThisPage     = 0
	JumpNextPage     = -1
	JumpEOL          = -9
	JumpUnseenBranch = -50
	JumpRandomPage   = -60
	JumpRandomBranch = -70
	JumpClusterJump  = -80
)

// Page categories.
const (
	PageTypeQuestion  = 0
	PageTypeStructure = 1
)

// Question and structure page subtypes.
const (
	PageSubtypeShortAnswer  = 1
	PageSubtypeTrueFalse    = 2
	PageSubtypeMultichoice  = 3
	PageSubtypeMatching     = 5
	PageSubtypeNumerical    = 8
	PageSubtypeEssay        = 10
	PageSubtypeBranchTable  = 20
	PageSubtypeEndOfBranch  = 21
	PageSubtypeCluster      = 30
	PageSubtypeEndOfCluster = 31
)

// Sentinel markers inside answer records.
const (
	OtherAnswersMarker   = "@#wronganswer#@"
	MultiAnswerDelimiter = "@^#|"
)

// Lesson is the remote activity definition as downloaded from the LMS.
// It is cached locally (Redis) but never stored in the offline database.
type Lesson struct {
	ID           int64   `json:"id"`
	CourseID     int64   `json:"course"`
	CourseModule int64   `json:"coursemodule"`
	Name         string  `json:"name"`
	Grade        float64 `json:"grade"`
	Custom       bool    `json:"custom"`
	MaxAttempts  int     `json:"maxattempts"`
	MinQuestions int     `json:"minquestions"`
	Retake       bool    `json:"retake"`
	UsePassword  bool    `json:"usepassword"`
	Timelimit    int     `json:"timelimit"` // seconds, 0 = none
	Review       bool    `json:"review"`
	Feedback     bool    `json:"feedback"`
	Available    int64   `json:"available"` // unix, 0 = always
	Deadline     int64   `json:"deadline"`  // unix, 0 = never

	// Ongoing is only present when the lesson payload was fetched with a
	// valid password (or none is required). Its absence after a password
	// submission means the password was rejected.
	Ongoing *int `json:"ongoing,omitempty"`
}

// PreventAccessReason is a single reason the remote reports for denying
// entry to a lesson.
type PreventAccessReason struct {
	Reason  string `json:"reason"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	PreventReasonNotOpen  = "lessonopen"
	PreventReasonClosed   = "lessonclosed"
	PreventReasonPassword = "passwordprotectedlesson"
	PreventReasonNoRetake = "noretake"
)

// AccessInfo is the per-user access snapshot for a lesson.
type AccessInfo struct {
	LessonID             int64                 `json:"lessonid"`
	AttemptsCount        int                   `json:"attemptscount"`
	CanManage            bool                  `json:"canmanage"`
	CanViewReports       bool                  `json:"canviewreports"`
	LeftDuringTimedSess  bool                  `json:"leftduringtimedsession"`
	FirstPageID          int64                 `json:"firstpageid"`
	PreventAccessReasons []PreventAccessReason `json:"preventaccessreasons"`
}

// IsPasswordProtected reports whether password protection is the only
// thing standing between the user and the lesson.
func (a *AccessInfo) IsPasswordProtected() bool {
	return len(a.PreventAccessReasons) == 1 &&
		a.PreventAccessReasons[0].Reason == PreventReasonPassword
}

// GradeResult is the outcome of grading a retake.
type GradeResult struct {
	NQuestions   int     `json:"nquestions"`
	Attempts     int     `json:"attempts"`
	Total        float64 `json:"total"`
	Earned       float64 `json:"earned"`
	Grade        float64 `json:"grade"` // percentage, 5 decimal places
	NManual      int     `json:"nmanual"`
	ManualPoints float64 `json:"manualpoints"`
}

// EOLPageData is what the simulated end-of-lesson page shows when a retake
// is finished offline.
type EOLPageData struct {
	GradeInfo           *GradeResult `json:"gradeinfo,omitempty"`
	ProgressCompleted   bool         `json:"progresscompleted"`
	NumberOfPagesViewed int          `json:"numberofpagesviewed"`
	DisplayScore        bool         `json:"displayscore"`
	WithEssays          bool         `json:"withessays"`
	YourCurrentGradeIs  float64      `json:"yourcurrentgradeis"`
	GradeOutOf          float64      `json:"gradeoutof"`
}

// SyncResultSummary is persisted alongside the sync time so the control
// API can report the last outcome without re-running anything.
type SyncResultSummary struct {
	Warnings []string  `json:"warnings"`
	Updated  bool      `json:"updated"`
	Time     time.Time `json:"time"`
}
