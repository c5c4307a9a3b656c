package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
)

// CheckAnswer dispatches a page submission to the subtype checker and
// produces the navigation outcome.
func (s *lessonService) CheckAnswer(lc *LessonContext, pageID int64, data models.FormData) (*CheckAnswerResult, error) {
	page := lc.Page(pageID)
	if page == nil {
		return nil, fmt.Errorf("page %d: %w", pageID, ErrPageNotFound)
	}

	result := &CheckAnswerResult{}

	switch page.Page.QType {
	case models.PageSubtypeBranchTable:
		content, ok := data.(models.ContentData)
		if !ok {
			return nil, fmt.Errorf("page %d expects content form data", pageID)
		}
		result.ImmediateJump = true
		result.NewPageID = s.NewPageID(lc, pageID, content.JumpTo)

	case models.PageSubtypeEssay:
		s.checkEssay(lc, page, data, result)

	case models.PageSubtypeMatching:
		s.checkMatching(lc, page, data, result)

	case models.PageSubtypeMultichoice:
		s.checkMultichoice(lc, page, data, result)

	case models.PageSubtypeNumerical:
		s.checkNumerical(lc, page, data, result)

	case models.PageSubtypeShortAnswer:
		s.checkShortAnswer(lc, page, data, result)

	case models.PageSubtypeTrueFalse:
		s.checkTrueFalse(lc, page, data, result)

	default:
		// Clusters and branch ends carry no user answer; navigation
		// follows the page graph directly.
		result.NewPageID = s.NewPageID(lc, pageID, page.Page.NextPageID)
	}

	return result, nil
}

// isAnswerCorrect decides correctness the way the remote does: custom
// scoring trusts the score, default scoring trusts the jump direction.
func (s *lessonService) isAnswerCorrect(lc *LessonContext, pageID int64, answer models.PageAnswer) bool {
	if lc.Lesson != nil && lc.Lesson.Custom {
		return answer.Score > 0
	}
	return s.JumpToIsCorrect(lc, pageID, answer.JumpTo)
}

// checkOtherAnswers applies the catch-all answer when nothing matched.
// The last answer row carries the wrong-answer sentinel when the teacher
// configured a default response.
func (s *lessonService) checkOtherAnswers(lc *LessonContext, page *models.PageWithAnswers, result *CheckAnswerResult) {
	if result.AnswerID != 0 || len(page.Answers) == 0 {
		return
	}
	last := page.Answers[len(page.Answers)-1]
	if !strings.Contains(last.Answer, models.OtherAnswersMarker) {
		return
	}

	result.AnswerID = last.ID
	result.NewPageID = s.NewPageID(lc, page.Page.ID, last.JumpTo)
	result.Response = last.Response
	// The catch-all is only ever correct when custom scoring assigns it
	// points; default scoring keeps the answer wrong regardless of where
	// its jump lands.
	if lc.Lesson != nil && lc.Lesson.Custom {
		result.CorrectAnswer = last.Score > 0
	}
}

func (s *lessonService) checkEssay(lc *LessonContext, page *models.PageWithAnswers, data models.FormData, result *CheckAnswerResult) {
	essay, ok := data.(models.EssayData)
	if !ok || strings.TrimSpace(essay.Text) == "" {
		result.NoAnswer = true
		return
	}

	result.IsEssayQuestion = true
	result.StudentAnswer = essay.Text
	result.UserResponse = models.EssayUserAnswer{
		Answer: essay.Text,
		Format: essay.Format,
	}

	if len(page.Answers) > 0 {
		answer := page.Answers[0]
		result.AnswerID = answer.ID
		result.NewPageID = s.NewPageID(lc, page.Page.ID, answer.JumpTo)
	}
}

func (s *lessonService) checkMatching(lc *LessonContext, page *models.PageWithAnswers, data models.FormData, result *CheckAnswerResult) {
	matching, ok := data.(models.MatchingData)
	if !ok || len(matching.Responses) == 0 {
		result.NoAnswer = true
		return
	}
	if len(page.Answers) < 2 {
		result.NoAnswer = true
		return
	}

	// The first two answer rows are the correct/wrong response templates;
	// the rest are the pairs to match.
	correctTemplate := page.Answers[0]
	wrongTemplate := page.Answers[1]
	pairs := page.Answers[2:]

	hits := 0
	var userResponses []string
	for _, pair := range pairs {
		chosen := matching.Responses[pair.ID]
		userResponses = append(userResponses, chosen)
		if chosen != "" && chosen == pair.Response {
			hits++
		}
	}

	result.UserResponse = strings.Join(userResponses, models.MultiAnswerDelimiter)
	result.StudentAnswer = strings.Join(userResponses, models.MultiAnswerDelimiter)

	template := wrongTemplate
	if hits == len(pairs) {
		result.CorrectAnswer = true
		template = correctTemplate
	}
	result.AnswerID = template.ID
	result.NewPageID = s.NewPageID(lc, page.Page.ID, template.JumpTo)
	result.Response = template.Response
}

func (s *lessonService) checkMultichoice(lc *LessonContext, page *models.PageWithAnswers, data models.FormData, result *CheckAnswerResult) {
	choice, ok := data.(models.MultichoiceData)
	if !ok || len(choice.AnswerIDs) == 0 {
		result.NoAnswer = true
		return
	}

	if !choice.Multiple {
		s.applyAnswerByID(lc, page, choice.AnswerIDs[0], result)
		return
	}

	selected := make(map[int64]bool, len(choice.AnswerIDs))
	for _, id := range choice.AnswerIDs {
		selected[id] = true
	}

	var correctAnswers, wrongAnswers []models.PageAnswer
	var studentAnswers []string
	hits := 0
	for _, answer := range page.Answers {
		correct := s.isAnswerCorrect(lc, page.Page.ID, answer)
		if correct {
			correctAnswers = append(correctAnswers, answer)
			if selected[answer.ID] {
				hits++
			}
		} else {
			wrongAnswers = append(wrongAnswers, answer)
		}
		if selected[answer.ID] {
			studentAnswers = append(studentAnswers, answer.Answer)
		}
	}

	result.StudentAnswer = strings.Join(studentAnswers, models.MultiAnswerDelimiter)
	result.CorrectAnswer = len(choice.AnswerIDs) == len(correctAnswers) && hits == len(correctAnswers)

	// Navigation follows the first answer of the winning kind.
	var template *models.PageAnswer
	if result.CorrectAnswer && len(correctAnswers) > 0 {
		template = &correctAnswers[0]
	} else if len(wrongAnswers) > 0 {
		template = &wrongAnswers[0]
	}
	if template != nil {
		result.AnswerID = template.ID
		result.NewPageID = s.NewPageID(lc, page.Page.ID, template.JumpTo)
		result.Response = template.Response
	}
}

func (s *lessonService) checkNumerical(lc *LessonContext, page *models.PageWithAnswers, data models.FormData, result *CheckAnswerResult) {
	numerical, ok := data.(models.NumericalData)
	if !ok {
		result.NoAnswer = true
		return
	}
	raw := strings.TrimSpace(numerical.Answer)
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if raw == "" || err != nil {
		result.NoAnswer = true
		return
	}
	result.StudentAnswer = raw

	for _, answer := range page.Answers {
		expected := strings.TrimSpace(answer.Answer)
		matched := false

		if strings.Contains(expected, ":") {
			// "min:max" means an inclusive range.
			parts := strings.SplitN(expected, ":", 2)
			min, errMin := strconv.ParseFloat(parts[0], 64)
			max, errMax := strconv.ParseFloat(parts[1], 64)
			matched = errMin == nil && errMax == nil && value >= min && value <= max
		} else {
			exact, errExact := strconv.ParseFloat(expected, 64)
			matched = errExact == nil && exact == value
		}

		if matched {
			result.AnswerID = answer.ID
			result.NewPageID = s.NewPageID(lc, page.Page.ID, answer.JumpTo)
			result.Response = answer.Response
			result.CorrectAnswer = s.isAnswerCorrect(lc, page.Page.ID, answer)
			break
		}
	}

	s.checkOtherAnswers(lc, page, result)
}

func (s *lessonService) checkShortAnswer(lc *LessonContext, page *models.PageWithAnswers, data models.FormData, result *CheckAnswerResult) {
	short, ok := data.(models.ShortAnswerData)
	if !ok {
		result.NoAnswer = true
		return
	}
	studentAnswer := strings.TrimSpace(short.Answer)
	if studentAnswer == "" {
		result.NoAnswer = true
		return
	}
	result.StudentAnswer = studentAnswer

	useRegexp := page.Page.QOption

	for _, answer := range page.Answers {
		expected := strings.TrimSpace(answer.Answer)
		if expected == "" || strings.Contains(expected, models.OtherAnswersMarker) {
			continue
		}

		matched, markedAnswer := matchShortAnswer(studentAnswer, expected, useRegexp)
		if !matched {
			continue
		}
		if markedAnswer != "" {
			result.StudentAnswer = markedAnswer
		}

		result.AnswerID = answer.ID
		result.NewPageID = s.NewPageID(lc, page.Page.ID, answer.JumpTo)
		result.Response = answer.Response
		result.CorrectAnswer = s.isAnswerCorrect(lc, page.Page.ID, answer)
		break
	}

	s.checkOtherAnswers(lc, page, result)
}

// matchShortAnswer applies either wildcard or regular-expression
// matching. In regexp mode two teacher codes are honored: "--expr"
// matches when the student answer does NOT match expr, and "++expr"
// searches globally, returning the student answer with the matched
// fragments marked.
func matchShortAnswer(studentAnswer, expected string, useRegexp bool) (bool, string) {
	if !useRegexp {
		// Only the first wildcard is honored; the rest are literal.
		var pattern string
		if idx := strings.Index(expected, "*"); idx >= 0 {
			pattern = regexp.QuoteMeta(expected[:idx]) + ".*" + regexp.QuoteMeta(expected[idx+1:])
		} else {
			pattern = regexp.QuoteMeta(expected)
		}
		re, err := regexp.Compile("(?i)^" + pattern + "$")
		if err != nil {
			return false, ""
		}
		return re.MatchString(studentAnswer), ""
	}

	flags := ""
	expr := expected
	if strings.HasSuffix(expr, "/i") {
		expr = strings.TrimSuffix(expr, "/i")
		flags = "(?i)"
	}

	switch {
	case strings.HasPrefix(expr, "--"):
		// The excluded expression must fail as a full match.
		re, err := regexp.Compile(flags + "^" + strings.TrimPrefix(expr, "--") + "$")
		if err != nil {
			return false, ""
		}
		return !re.MatchString(studentAnswer), ""

	case strings.HasPrefix(expr, "++"):
		re, err := regexp.Compile(flags + strings.TrimPrefix(expr, "++"))
		if err != nil {
			return false, ""
		}
		matches := re.FindAllString(studentAnswer, -1)
		if len(matches) == 0 {
			return false, ""
		}
		marked := re.ReplaceAllString(studentAnswer, "<span class=\"incorrect matches\">$0</span>")
		return true, marked

	default:
		re, err := regexp.Compile(flags + "^" + expr + "$")
		if err != nil {
			return false, ""
		}
		return re.MatchString(studentAnswer), ""
	}
}

func (s *lessonService) checkTrueFalse(lc *LessonContext, page *models.PageWithAnswers, data models.FormData, result *CheckAnswerResult) {
	truefalse, ok := data.(models.TrueFalseData)
	if !ok || truefalse.AnswerID == 0 {
		result.NoAnswer = true
		return
	}
	s.applyAnswerByID(lc, page, truefalse.AnswerID, result)
}

// applyAnswerByID resolves an answer row chosen by id, shared by the
// true/false and single-answer multichoice checkers.
func (s *lessonService) applyAnswerByID(lc *LessonContext, page *models.PageWithAnswers, answerID int64, result *CheckAnswerResult) {
	for _, answer := range page.Answers {
		if answer.ID != answerID {
			continue
		}
		result.AnswerID = answer.ID
		result.NewPageID = s.NewPageID(lc, page.Page.ID, answer.JumpTo)
		result.Response = answer.Response
		result.StudentAnswer = answer.Answer
		result.CorrectAnswer = s.isAnswerCorrect(lc, page.Page.ID, answer)
		return
	}
	result.NoAnswer = true
}
