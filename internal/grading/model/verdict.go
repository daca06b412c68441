package model

import (
	"strconv"
	"strings"
)

// Verdict is the result of grading one response.
// ExtraInfo lists failing test case ids, CodeErrors the distinct last error lines,
// both joined with ";".
type Verdict struct {
	Status     bool    `json:"status"`
	Score      float64 `json:"score"`
	ExtraInfo  string  `json:"extra_info"`
	CodeErrors string  `json:"code_errors"`
}

// GradeMessage is the queue payload. Only the identifier is trusted.
type GradeMessage struct {
	QuestionSubmissionID int64 `json:"question_submission_id"`
}

// GradeState is the coarse progress of a grading job.
type GradeState string

const (
	GradeStatePending  GradeState = "Pending"
	GradeStateGrading  GradeState = "Grading"
	GradeStateFinished GradeState = "Finished"
	GradeStateFailed   GradeState = "Failed"
)

// GradeStatus is the externally visible state of a grading job.
type GradeStatus struct {
	QuestionSubmissionID int64      `json:"question_submission_id"`
	State                GradeState `json:"state"`
	Verdict              *Verdict   `json:"verdict,omitempty"`
	ErrorCode            int        `json:"error_code,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	UpdatedAt            int64      `json:"updated_at"`
}

// RunRecord is the transcript of one test case run.
type RunRecord struct {
	TestCaseID int64  `json:"test_case_id"`
	Passed     bool   `json:"passed"`
	Stdout     string `json:"stdout"`
	ErrorTail  string `json:"error_tail,omitempty"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Transcript collects the runs of one authoritative CODE grading.
type Transcript struct {
	QuestionSubmissionID int64       `json:"question_submission_id"`
	QuizSubmissionID     int64       `json:"quiz_submission_id"`
	Verdict              Verdict     `json:"verdict"`
	Runs                 []RunRecord `json:"runs"`
	GradedAt             int64       `json:"graded_at"`
}

// JoinIDs renders ids in order separated by ";".
func JoinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ";")
}
