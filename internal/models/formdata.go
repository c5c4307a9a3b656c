package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FormData is the per-subtype answer payload a user submits for a page.
// Fields encodes it into the flat form-field map the remote process-page
// operation expects. Encoding happens once, at record time; the map is
// stored on the attempt and replayed verbatim during sync.
type FormData interface {
	Subtype() int
	Fields() map[string]string
}

// ShortAnswerData is a free-text answer, shared by short-answer and
// numerical pages.
type ShortAnswerData struct {
	Answer string
}

func (d ShortAnswerData) Subtype() int { return PageSubtypeShortAnswer }

func (d ShortAnswerData) Fields() map[string]string {
	return map[string]string{"answer": d.Answer}
}

// NumericalData is a numeric answer submitted as text.
type NumericalData struct {
	Answer string
}

func (d NumericalData) Subtype() int { return PageSubtypeNumerical }

func (d NumericalData) Fields() map[string]string {
	return map[string]string{"answer": d.Answer}
}

// TrueFalseData selects one of the two answer rows by id.
type TrueFalseData struct {
	AnswerID int64
}

func (d TrueFalseData) Subtype() int { return PageSubtypeTrueFalse }

func (d TrueFalseData) Fields() map[string]string {
	return map[string]string{"answerid": strconv.FormatInt(d.AnswerID, 10)}
}

// MultichoiceData holds the selected answer ids. Single-answer pages use
// exactly one id; multiple-answer pages (QOption set) any number.
type MultichoiceData struct {
	AnswerIDs []int64
	Multiple  bool
}

func (d MultichoiceData) Subtype() int { return PageSubtypeMultichoice }

func (d MultichoiceData) Fields() map[string]string {
	fields := make(map[string]string, len(d.AnswerIDs))
	if !d.Multiple {
		if len(d.AnswerIDs) > 0 {
			fields["answerid"] = strconv.FormatInt(d.AnswerIDs[0], 10)
		}
		return fields
	}
	for _, id := range d.AnswerIDs {
		fields[fmt.Sprintf("answer[%d]", id)] = strconv.FormatInt(id, 10)
	}
	return fields
}

// MatchingData maps each answer row id to the option the user paired it
// with.
type MatchingData struct {
	Responses map[int64]string
}

func (d MatchingData) Subtype() int { return PageSubtypeMatching }

func (d MatchingData) Fields() map[string]string {
	fields := make(map[string]string, len(d.Responses))
	for answerID, response := range d.Responses {
		fields[fmt.Sprintf("response[%d]", answerID)] = response
	}
	return fields
}

// EssayData is a rich-text essay answer.
type EssayData struct {
	Text   string
	Format int
}

func (d EssayData) Subtype() int { return PageSubtypeEssay }

func (d EssayData) Fields() map[string]string {
	return map[string]string{
		"answer[text]":   d.Text,
		"answer[format]": strconv.Itoa(d.Format),
	}
}

// ContentData is the jump chosen on a branch-table (content) page.
type ContentData struct {
	JumpTo int64
}

func (d ContentData) Subtype() int { return PageSubtypeBranchTable }

func (d ContentData) Fields() map[string]string {
	return map[string]string{"jumpto": strconv.FormatInt(d.JumpTo, 10)}
}

// EncodeFormFields marshals a form-field map for storage on an attempt.
func EncodeFormFields(data FormData) (json.RawMessage, error) {
	raw, err := json.Marshal(data.Fields())
	if err != nil {
		return nil, fmt.Errorf("encode form fields: %w", err)
	}
	return raw, nil
}

// DecodeFormFields unmarshals a stored form-field map for replay.
func DecodeFormFields(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode form fields: %w", err)
	}
	return fields, nil
}

// EssayUserAnswer is the user-answer payload stored for essay attempts,
// mirroring what the remote keeps until a teacher grades it.
type EssayUserAnswer struct {
	Sent     int     `json:"sent"`
	Graded   int     `json:"graded"`
	Score    float64 `json:"score"`
	Answer   string  `json:"answer"`
	Format   int     `json:"answerformat"`
	Response string  `json:"response"`
	RespFmt  int     `json:"responseformat"`
}
