package model

// QuestionType is the kind of question, which decides how a response is graded.
type QuestionType string

const (
	QuestionTypeChoice    QuestionType = "CHOICE"
	QuestionTypeFillBlank QuestionType = "FILL_BLANK"
	QuestionTypeCode      QuestionType = "CODE"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeChoice, QuestionTypeFillBlank, QuestionTypeCode:
		return true
	default:
		return false
	}
}

// Question is a gradable item. Only the fields matching Type are populated.
type Question struct {
	ID          int64        `json:"id"`
	Type        QuestionType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	// Template is program text with blank markers, CODE only.
	Template  string     `json:"template,omitempty"`
	Choices   []Choice   `json:"choices,omitempty"`
	Answers   []Answer   `json:"answers,omitempty"`
	TestCases []TestCase `json:"test_cases,omitempty"`
}

type Choice struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"is_correct"`
}

// Answer is one accepted text for a FILL_BLANK question.
type Answer struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// TestCase is an input/expected-output pair. Cases are kept in id order.
type TestCase struct {
	ID     int64  `json:"id"`
	Input  string `json:"input"`
	Output string `json:"output"`
}
