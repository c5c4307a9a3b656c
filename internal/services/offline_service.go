package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories"
	"github.com/SAP-F-2025/lesson-sync-service/internal/validator"
)

// offlineService implements OfflineService on top of the offline store.
type offlineService struct {
	repo      repositories.Repository
	db        *gorm.DB
	lesson    LessonService
	logger    *slog.Logger
	validator *validator.Validator
}

// NewOfflineService creates the offline recording service.
func NewOfflineService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, lesson LessonService) OfflineService {
	return &offlineService{
		repo:      repo,
		db:        db,
		lesson:    lesson,
		logger:    logger,
		validator: v,
	}
}

// ProcessPage checks a page submission locally and records it for later
// sync. Question pages without an answer are re-presented and nothing is
// stored.
func (s *offlineService) ProcessPage(ctx context.Context, req *ProcessPageRequest, lc *LessonContext, data models.FormData) (*ProcessPageResult, error) {
	if errs := s.validator.Validate(req); errs != nil {
		return nil, errs
	}
	page := lc.Page(req.PageID)
	if page == nil {
		return nil, fmt.Errorf("page %d: %w", req.PageID, ErrPageNotFound)
	}

	check, err := s.lesson.CheckAnswer(lc, req.PageID, data)
	if err != nil {
		return nil, err
	}

	result := &ProcessPageResult{Check: check, AttemptsRemaining: -1}

	if page.Page.IsQuestion() && check.NoAnswer {
		// Same page again, with feedback; the empty submission is not
		// recorded.
		result.NewPageID = req.PageID
		check.Feedback = "You must enter an answer"
		return result, nil
	}

	newPageID := check.NewPageID

	if page.Page.IsQuestion() && lc.Lesson.MaxAttempts > 0 {
		previous, err := s.repo.Attempt().GetPageAttempts(ctx, req.SiteID, req.LessonID, req.Retake, req.PageID)
		if err != nil {
			return nil, storageErr("count page attempts", err)
		}
		made := len(previous) + 1
		result.AttemptsRemaining = lc.Lesson.MaxAttempts - made
		if result.AttemptsRemaining < 0 {
			result.AttemptsRemaining = 0
		}
		if !check.CorrectAnswer && made >= lc.Lesson.MaxAttempts {
			// Out of retries: the lesson moves on regardless.
			newPageID = s.lesson.NewPageID(lc, req.PageID, models.JumpNextPage)
			result.MaxAttemptsReached = true
		}
	}
	result.NewPageID = newPageID

	attempt, err := buildAttempt(req, page, data, check, newPageID)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Attempt().Create(ctx, tx, attempt); err != nil {
			return err
		}
		if page.Page.IsQuestion() {
			return s.touchRetake(ctx, tx, req, attempt.Timemodified)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("record attempt", err)
	}

	s.logger.Debug("offline attempt recorded",
		"site_id", req.SiteID,
		"lesson_id", req.LessonID,
		"page_id", req.PageID,
		"retake", req.Retake,
		"correct", check.CorrectAnswer)

	return s.attachOfflineData(ctx, req, lc, page, result)
}

// buildAttempt materializes the stored row, encoding the form fields for
// verbatim replay.
func buildAttempt(req *ProcessPageRequest, page *models.PageWithAnswers, data models.FormData, check *CheckAnswerResult, newPageID int64) (*models.PageAttempt, error) {
	fields, err := models.EncodeFormFields(data)
	if err != nil {
		return nil, err
	}

	var userAnswer []byte
	if check.UserResponse != nil {
		userAnswer, err = json.Marshal(check.UserResponse)
	} else {
		userAnswer, err = json.Marshal(check.StudentAnswer)
	}
	if err != nil {
		return nil, fmt.Errorf("encode user answer: %w", err)
	}

	return &models.PageAttempt{
		SiteID:       req.SiteID,
		LessonID:     req.LessonID,
		Retake:       req.Retake,
		PageID:       req.PageID,
		Timemodified: time.Now().Unix(),
		CourseID:     req.CourseID,
		PageType:     page.Page.Type,
		Data:         datatypes.JSON(fields),
		NewPageID:    newPageID,
		Correct:      check.CorrectAnswer,
		AnswerID:     check.AnswerID,
		UserAnswer:   datatypes.JSON(userAnswer),
	}, nil
}

// touchRetake updates the retake row's last question page. A stored row
// for a different retake number is replaced wholesale, never merged.
func (s *offlineService) touchRetake(ctx context.Context, tx *gorm.DB, req *ProcessPageRequest, timemodified int64) error {
	retake, err := s.repo.Retake().Get(ctx, req.SiteID, req.LessonID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return err
	}
	if err != nil || retake.Retake != req.Retake {
		retake = &models.RetakeState{
			SiteID:   req.SiteID,
			LessonID: req.LessonID,
			Retake:   req.Retake,
			CourseID: req.CourseID,
		}
	}
	retake.LastQuestionPageID = req.PageID
	retake.Timemodified = timemodified
	return s.repo.Retake().Save(ctx, tx, retake)
}

// attachOfflineData fills in the progress and ongoing score shown after
// an offline submission.
func (s *offlineService) attachOfflineData(ctx context.Context, req *ProcessPageRequest, lc *LessonContext, page *models.PageWithAnswers, result *ProcessPageResult) (*ProcessPageResult, error) {
	attempts, err := s.repo.Attempt().GetRetakeAttempts(ctx, req.SiteID, req.LessonID, req.Retake)
	if err != nil {
		return nil, storageErr("load retake attempts", err)
	}

	progress, err := s.lesson.CalculateProgress(lc, attemptPageIDs(attempts), false)
	if err != nil {
		return nil, err
	}
	result.Progress = progress

	if page.Page.IsQuestion() {
		grade, err := s.lesson.Grade(lc, attempts)
		if err != nil {
			return nil, err
		}
		result.OngoingScore = s.lesson.OngoingScoreMessage(lc, grade)
	}

	return result, nil
}

func attemptPageIDs(attempts []*models.PageAttempt) []int64 {
	seen := make(map[int64]bool, len(attempts))
	var ids []int64
	for _, attempt := range attempts {
		if !seen[attempt.PageID] {
			seen[attempt.PageID] = true
			ids = append(ids, attempt.PageID)
		}
	}
	return ids
}

// FinishRetake marks the offline retake as finished and simulates the
// end-of-lesson page.
func (s *offlineService) FinishRetake(ctx context.Context, req *FinishRetakeRequest, lc *LessonContext) (*models.EOLPageData, error) {
	if errs := s.validator.Validate(req); errs != nil {
		return nil, errs
	}

	now := time.Now().Unix()
	retake, err := s.repo.Retake().Get(ctx, req.SiteID, req.LessonID)
	if err != nil || retake.Retake != req.Retake {
		retake = &models.RetakeState{
			SiteID:   req.SiteID,
			LessonID: req.LessonID,
			Retake:   req.Retake,
			CourseID: req.CourseID,
		}
	}
	retake.Finished = true
	retake.OutOfTime = req.OutOfTime
	retake.Timemodified = now

	if err := s.repo.Retake().Save(ctx, nil, retake); err != nil {
		return nil, storageErr("finish retake", err)
	}

	attempts, err := s.repo.Attempt().GetRetakeAttempts(ctx, req.SiteID, req.LessonID, req.Retake)
	if err != nil {
		return nil, storageErr("load retake attempts", err)
	}

	s.logger.Info("offline retake finished",
		"site_id", req.SiteID,
		"lesson_id", req.LessonID,
		"retake", req.Retake,
		"out_of_time", req.OutOfTime)

	return s.lesson.EOLPageData(lc, attempts, attemptPageIDs(attempts))
}

func (s *offlineService) GetRetake(ctx context.Context, siteID string, lessonID int64) (*models.RetakeState, error) {
	retake, err := s.repo.Retake().Get(ctx, siteID, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrRetakeNotFound
		}
		return nil, storageErr("get retake", err)
	}
	return retake, nil
}

func (s *offlineService) GetRetakeAttempts(ctx context.Context, siteID string, lessonID int64, retake int) ([]*models.PageAttempt, error) {
	attempts, err := s.repo.Attempt().GetRetakeAttempts(ctx, siteID, lessonID, retake)
	if err != nil {
		return nil, storageErr("list retake attempts", err)
	}
	return attempts, nil
}

// GetLastQuestionPageAttempt returns the latest attempt on the stored
// last question page, used to compute the resume point.
func (s *offlineService) GetLastQuestionPageAttempt(ctx context.Context, siteID string, lessonID int64) (*models.PageAttempt, error) {
	retake, err := s.repo.Retake().Get(ctx, siteID, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, storageErr("get retake", err)
	}
	if retake.LastQuestionPageID == 0 {
		return nil, ErrAttemptNotFound
	}

	attempts, err := s.repo.Attempt().GetPageAttempts(ctx, siteID, lessonID, retake.Retake, retake.LastQuestionPageID)
	if err != nil {
		return nil, storageErr("list page attempts", err)
	}
	if len(attempts) == 0 {
		return nil, ErrAttemptNotFound
	}
	return attempts[len(attempts)-1], nil
}

func (s *offlineService) HasOfflineData(ctx context.Context, siteID string, lessonID int64) (bool, error) {
	if _, err := s.repo.Retake().Get(ctx, siteID, lessonID); err == nil {
		return true, nil
	} else if !repositories.IsNotFoundError(err) {
		return false, storageErr("get retake", err)
	}

	has, err := s.repo.Attempt().HasAttempts(ctx, siteID, lessonID)
	if err != nil {
		return false, storageErr("check attempts", err)
	}
	return has, nil
}

// GetAllLessonsWithData merges the lessons that have pending attempts
// with those that have a pending retake row.
func (s *offlineService) GetAllLessonsWithData(ctx context.Context, siteID string) ([]int64, error) {
	fromAttempts, err := s.repo.Attempt().LessonIDs(ctx, siteID)
	if err != nil {
		return nil, storageErr("list attempt lessons", err)
	}
	fromRetakes, err := s.repo.Retake().LessonIDs(ctx, siteID)
	if err != nil {
		return nil, storageErr("list retake lessons", err)
	}

	seen := make(map[int64]bool, len(fromAttempts)+len(fromRetakes))
	var merged []int64
	for _, id := range append(fromAttempts, fromRetakes...) {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	return merged, nil
}

func (s *offlineService) QueueViewLog(ctx context.Context, siteID string, lessonID, pageID int64, password string) error {
	log := &models.ViewLog{
		SiteID:   siteID,
		LessonID: lessonID,
		PageID:   pageID,
		Password: password,
		Time:     time.Now().Unix(),
	}
	if err := s.repo.ViewLog().Append(ctx, nil, log); err != nil {
		return storageErr("queue view log", err)
	}
	return nil
}
