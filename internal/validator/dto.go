package validator

// ProcessPageRequest carries an offline page submission.
type ProcessPageRequest struct {
	SiteID   string `json:"site_id" validate:"required,max=64"`
	LessonID int64  `json:"lesson_id" validate:"required,gt=0"`
	CourseID int64  `json:"course_id" validate:"required,gt=0"`
	PageID   int64  `json:"page_id" validate:"required,gt=0"`
	Retake   int    `json:"retake" validate:"gte=0"`
}

// FinishRetakeRequest carries an offline retake finish.
type FinishRetakeRequest struct {
	SiteID    string `json:"site_id" validate:"required,max=64"`
	LessonID  int64  `json:"lesson_id" validate:"required,gt=0"`
	CourseID  int64  `json:"course_id" validate:"required,gt=0"`
	Retake    int    `json:"retake" validate:"gte=0"`
	OutOfTime bool   `json:"out_of_time"`
}

// SyncLessonRequest triggers a sync run for one lesson.
type SyncLessonRequest struct {
	SiteID      string `json:"site_id" validate:"required,max=64"`
	IgnoreBlock bool   `json:"ignore_block"`
}
