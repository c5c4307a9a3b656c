package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
)

// lessonService implements LessonService. All methods are pure functions
// over a LessonContext.
type lessonService struct {
	logger *slog.Logger
}

// NewLessonService creates the lesson calculator.
func NewLessonService(logger *slog.Logger) LessonService {
	return &lessonService{logger: logger}
}

// roundToDecimals rounds to the given number of decimal places, matching
// the remote's grade arithmetic.
func roundToDecimals(value float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(value*multiplier) / multiplier
}

// NewPageID resolves the page a jump lands on. The jump table carries the
// server-calculated target for relative jumps; a zero jump means "stay".
func (s *lessonService) NewPageID(lc *LessonContext, pageID, jumpTo int64) int64 {
	if calculated, ok := lc.Jumps.Calculated(pageID, jumpTo); ok {
		return calculated
	}
	if jumpTo == 0 {
		return pageID
	}
	return jumpTo
}

// JumpToIsCorrect reports whether following jumpTo from pageID moves the
// user forward. Relative forward jumps always do; an absolute target only
// when it is reachable along the NextPageID chain.
func (s *lessonService) JumpToIsCorrect(lc *LessonContext, pageID, jumpTo int64) bool {
	switch jumpTo {
	case 0:
		return false
	case models.JumpNextPage, models.JumpUnseenBranch, models.JumpRandomPage,
		models.JumpClusterJump, models.JumpEOL:
		return true
	}

	page := lc.Page(pageID)
	if page == nil {
		return false
	}
	seen := make(map[int64]bool)
	for id := page.Page.NextPageID; id != 0 && !seen[id]; {
		if id == jumpTo {
			return true
		}
		seen[id] = true
		next := lc.Page(id)
		if next == nil {
			break
		}
		id = next.Page.NextPageID
	}
	return false
}

// CalculateProgress walks the page graph from the first page, counting
// valid pages and how many of them were viewed. Review mode is always
// complete. The result is idempotent for a given input.
func (s *lessonService) CalculateProgress(lc *LessonContext, viewedPageIDs []int64, review bool) (int, error) {
	if review {
		return 100, nil
	}
	if lc.AccessInfo == nil {
		return 0, fmt.Errorf("access info required for progress: %w", ErrLessonNotFound)
	}

	viewed := make(map[int64]bool, len(viewedPageIDs))
	for _, id := range viewedPageIDs {
		viewed[id] = true
	}

	valid := make(map[int64]bool)
	seen := make(map[int64]bool)
	pageID := lc.AccessInfo.FirstPageID
	for pageID != 0 && !seen[pageID] {
		seen[pageID] = true
		page := lc.Page(pageID)
		if page == nil {
			break
		}
		pageID = s.validPageAndView(lc, page, valid, viewed)
	}

	if len(valid) == 0 {
		return 0, nil
	}

	viewedCount := 0
	for id := range valid {
		if viewed[id] {
			viewedCount++
		}
	}

	progress := roundToDecimals(float64(viewedCount)/float64(len(valid)), 2) * 100
	return int(math.Round(progress)), nil
}

// validPageAndView marks page as valid when it counts towards progress
// and returns the next page of the walk. Cluster subpages collapse onto
// the cluster page so a cluster is only counted once.
func (s *lessonService) validPageAndView(lc *LessonContext, page *models.PageWithAnswers, valid, viewed map[int64]bool) int64 {
	qtype := page.Page.QType
	if qtype != models.PageSubtypeEndOfCluster && qtype != models.PageSubtypeEndOfBranch {
		valid[page.Page.ID] = true
	}

	if qtype == models.PageSubtypeCluster {
		sub := lc.Page(page.Page.NextPageID)
		guard := make(map[int64]bool)
		for sub != nil && sub.Page.QType != models.PageSubtypeEndOfCluster && !guard[sub.Page.ID] {
			guard[sub.Page.ID] = true
			if viewed[sub.Page.ID] {
				delete(viewed, sub.Page.ID)
				viewed[page.Page.ID] = true
			}
			sub = lc.Page(sub.Page.NextPageID)
		}
		if sub != nil {
			return sub.Page.NextPageID
		}
		return 0
	}

	return page.Page.NextPageID
}

// Grade computes the retake grade from the stored attempts, honoring the
// retry cap, custom scoring and the minimum question floor. The final
// percentage keeps 5 decimal places.
func (s *lessonService) Grade(lc *LessonContext, attempts []*models.PageAttempt) (*models.GradeResult, error) {
	result := &models.GradeResult{}
	if len(attempts) == 0 {
		return result, nil
	}
	lesson := lc.Lesson
	if lesson == nil {
		return nil, ErrLessonNotFound
	}

	byPage := make(map[int64][]*models.PageAttempt)
	var pageOrder []int64
	for _, attempt := range attempts {
		if _, ok := byPage[attempt.PageID]; !ok {
			pageOrder = append(pageOrder, attempt.PageID)
		}
		byPage[attempt.PageID] = append(byPage[attempt.PageID], attempt)
	}

	// Cap retries per page: only the first MaxAttempts count.
	if lesson.MaxAttempts > 0 {
		for pageID, pageAttempts := range byPage {
			sort.SliceStable(pageAttempts, func(i, j int) bool {
				return pageAttempts[i].Timemodified < pageAttempts[j].Timemodified
			})
			if len(pageAttempts) > lesson.MaxAttempts {
				byPage[pageID] = pageAttempts[:lesson.MaxAttempts]
			}
		}
	}

	result.NQuestions = len(byPage)

	for _, pageID := range pageOrder {
		pageAttempts := byPage[pageID]
		result.Attempts += len(pageAttempts)

		page := lc.Page(pageID)
		if page == nil {
			continue
		}

		if lesson.Custom {
			result.Total += bestScore(page.Answers)
			last := pageAttempts[len(pageAttempts)-1]

			if page.Page.QType == models.PageSubtypeEssay {
				// Essays always wait for manual grading; an already
				// assigned score counts toward earned on top.
				result.NManual++
				result.ManualPoints += answerScore(page.Answers, last.AnswerID)
				if score, graded := essayScore(last); graded {
					result.Earned += score
				}
				continue
			}
			result.Earned += answerScore(page.Answers, last.AnswerID)
			continue
		}

		if page.Page.QType == models.PageSubtypeEssay {
			result.NManual++
			result.ManualPoints++
			continue
		}
		for _, attempt := range pageAttempts {
			if attempt.Correct {
				result.Earned++
			}
		}
	}

	if !lesson.Custom {
		result.Total = float64(result.Attempts)
		if lesson.MinQuestions > result.NQuestions {
			// The floor counts unanswered required questions against the
			// student.
			result.Total += float64(lesson.MinQuestions - result.NQuestions)
		}
	}

	if result.Total > 0 {
		result.Grade = roundToDecimals(result.Earned*100/result.Total, 5)
	}
	return result, nil
}

func bestScore(answers []models.PageAnswer) float64 {
	best := 0.0
	for _, answer := range answers {
		if float64(answer.Score) > best {
			best = float64(answer.Score)
		}
	}
	return best
}

func answerScore(answers []models.PageAnswer, answerID int64) float64 {
	for _, answer := range answers {
		if answer.ID == answerID {
			return float64(answer.Score)
		}
	}
	return 0
}

// essayScore extracts the manually graded score from a stored essay
// attempt, reporting whether grading happened.
func essayScore(attempt *models.PageAttempt) (float64, bool) {
	if len(attempt.UserAnswer) == 0 {
		return 0, false
	}
	var userAnswer models.EssayUserAnswer
	if err := json.Unmarshal(attempt.UserAnswer, &userAnswer); err != nil {
		return 0, false
	}
	if userAnswer.Graded == 0 {
		return 0, false
	}
	return userAnswer.Score, true
}

// LastPageSeen picks the resume point: whichever of the last question
// attempt's landing page and the last attempted page is newer.
func (s *lessonService) LastPageSeen(lc *LessonContext, attempts []*models.PageAttempt, lastQuestionPageID int64) int64 {
	var lastPageSeen int64
	var lastQuestionTime, lastAttemptTime int64

	for _, attempt := range attempts {
		if attempt.PageID == lastQuestionPageID && attempt.Timemodified > lastQuestionTime {
			lastQuestionTime = attempt.Timemodified
			lastPageSeen = attempt.NewPageID
		}
		if attempt.Timemodified > lastAttemptTime {
			lastAttemptTime = attempt.Timemodified
			if attempt.PageID != lastQuestionPageID {
				lastPageSeen = attempt.PageID
			}
		}
	}
	return lastPageSeen
}

// DisplayTeacherWarning reports whether the lesson uses jumps whose
// behavior cannot be faithfully replayed offline, so managers get a
// heads-up.
func (s *lessonService) DisplayTeacherWarning(lc *LessonContext) bool {
	for _, byJump := range lc.Jumps {
		for jumpTo := range byJump {
			if jumpTo == models.JumpClusterJump || jumpTo == models.JumpUnseenBranch {
				return true
			}
		}
	}
	return false
}

// OngoingScoreMessage renders the in-progress score line shown while
// working through the lesson.
func (s *lessonService) OngoingScoreMessage(lc *LessonContext, grade *models.GradeResult) string {
	lesson := lc.Lesson
	if lesson == nil || grade == nil {
		return ""
	}
	if lesson.Custom {
		points := roundToDecimals(grade.Earned, 1)
		return fmt.Sprintf("You have earned %v point(s) out of %v point(s) thus far.",
			points, roundToDecimals(grade.Total, 1))
	}
	return fmt.Sprintf("You have answered %d correctly out of %d attempts.",
		int(grade.Earned), grade.Attempts)
}

// EOLPageData simulates the end-of-lesson page for a retake finished
// offline.
func (s *lessonService) EOLPageData(lc *LessonContext, attempts []*models.PageAttempt, viewedPageIDs []int64) (*models.EOLPageData, error) {
	lesson := lc.Lesson
	if lesson == nil {
		return nil, ErrLessonNotFound
	}

	data := &models.EOLPageData{
		NumberOfPagesViewed: len(viewedPageIDs),
	}

	progress, err := s.CalculateProgress(lc, viewedPageIDs, false)
	if err != nil {
		return nil, err
	}
	data.ProgressCompleted = progress >= 100

	// Custom-scored lessons below the question floor show no score.
	if lesson.Custom && lesson.MinQuestions > 0 {
		answered := make(map[int64]bool)
		for _, attempt := range attempts {
			answered[attempt.PageID] = true
		}
		if len(answered) < lesson.MinQuestions {
			return data, nil
		}
	}

	grade, err := s.Grade(lc, attempts)
	if err != nil {
		return nil, err
	}
	data.GradeInfo = grade
	data.DisplayScore = true
	data.WithEssays = grade.NManual > 0
	data.YourCurrentGradeIs = roundToDecimals(grade.Grade*lesson.Grade/100, 1)
	data.GradeOutOf = lesson.Grade

	return data, nil
}
