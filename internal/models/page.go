package models

// Page is a single lesson page as downloaded from the LMS. Type
// distinguishes question pages from structure pages (branch tables,
// clusters); QType carries the subtype.
type Page struct {
	ID         int64  `json:"id"`
	LessonID   int64  `json:"lessonid"`
	PrevPageID int64  `json:"prevpageid"`
	NextPageID int64  `json:"nextpageid"`
	QType      int    `json:"qtype"`
	Type       int    `json:"type"`
	Title      string `json:"title"`
	Contents   string `json:"contents"`
	// QOption toggles per-subtype behavior: regular-expression matching
	// for short answer, multiple-answer mode for multichoice.
	QOption bool `json:"qoption"`
}

// IsQuestion reports whether answering this page counts towards the grade.
func (p *Page) IsQuestion() bool {
	return p.Type == PageTypeQuestion
}

// PageAnswer is one answer record attached to a page. For structure pages
// the answer rows carry the branch buttons and their jumps.
type PageAnswer struct {
	ID       int64  `json:"id"`
	PageID   int64  `json:"pageid"`
	JumpTo   int64  `json:"jumpto"`
	Grade    int    `json:"grade"`
	Score    int    `json:"score"`
	Answer   string `json:"answer"`
	Response string `json:"response"`
}

// PageWithAnswers bundles a page with its answer rows the way the page
// data web service returns them.
type PageWithAnswers struct {
	Page    Page         `json:"page"`
	Answers []PageAnswer `json:"answers"`
	// Jumps are the possible jump targets computed server-side for this
	// page, used to validate stored jumps when replaying navigation.
	Jumps []int64 `json:"jumps"`
}

// PageJumps maps page id -> raw jump -> calculated jump. The calculated
// value is what navigation lands on when the raw jump is a relative one.
type PageJumps map[int64]map[int64]int64

// Calculated resolves a raw jump for a page through the jump table. The
// second return is false when the table has no entry.
func (j PageJumps) Calculated(pageID, jumpTo int64) (int64, bool) {
	byJump, ok := j[pageID]
	if !ok {
		return 0, false
	}
	calc, ok := byJump[jumpTo]
	return calc, ok
}
