// Package dispatcher grades one response against one question.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"quizsys/internal/grading/model"
	"quizsys/internal/grading/sandbox"
	"quizsys/internal/grading/sandbox/observer"
	appErr "quizsys/pkg/errors"
)

// SampleCaseCount is the number of leading test cases shown to learners.
// Authoritative grading uses the cases after them.
const SampleCaseCount = 3

// Mode selects which test cases of a CODE question are used.
type Mode int

const (
	ModeAuthoritative Mode = iota
	ModeSample
)

func (m Mode) String() string {
	if m == ModeSample {
		return "sample"
	}
	return "authoritative"
}

// Request is one response to grade.
type Request struct {
	// SubmissionID names the sandbox script; it must be unique per concurrent run.
	SubmissionID string
	// ResponseType is the type recorded with the response; empty means unknown.
	ResponseType model.QuestionType
	Response     string
	Mode         Mode
}

// Outcome is a verdict plus the per-case runs that produced it.
type Outcome struct {
	Verdict model.Verdict
	Runs    []model.RunRecord
	// Executed is false when a CODE response was rejected before running.
	Executed bool
}

// Dispatcher routes a response to the grading rule of its question type.
type Dispatcher struct {
	runner  sandbox.Runner
	metrics observer.MetricsRecorder
}

func New(runner sandbox.Runner, metrics observer.MetricsRecorder) *Dispatcher {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &Dispatcher{runner: runner, metrics: metrics}
}

// Grade returns the verdict of req against question.
func (d *Dispatcher) Grade(ctx context.Context, question *model.Question, req Request) (model.Verdict, error) {
	out, err := d.GradeDetailed(ctx, question, req)
	if err != nil {
		return model.Verdict{}, err
	}
	return out.Verdict, nil
}

// GradeDetailed is Grade with the run transcript of CODE questions.
// Errors are caller or configuration errors (coded) or sandbox failures;
// a failing program is never an error.
func (d *Dispatcher) GradeDetailed(ctx context.Context, question *model.Question, req Request) (Outcome, error) {
	if question == nil {
		return Outcome{}, appErr.New(appErr.QuestionNotFound)
	}
	if req.ResponseType != "" && req.ResponseType != question.Type {
		return Outcome{}, appErr.Newf(appErr.QuestionTypeMismatch,
			"response of type %s cannot be graded against %s question %d", req.ResponseType, question.Type, question.ID)
	}

	start := time.Now()
	var (
		out Outcome
		err error
	)
	switch question.Type {
	case model.QuestionTypeChoice:
		out.Verdict = scoreVerdict(gradeChoice(question.Choices, req.Response))
	case model.QuestionTypeFillBlank:
		out.Verdict = scoreVerdict(gradeFillBlank(question.Answers, req.Response))
	case model.QuestionTypeCode:
		if d.runner == nil {
			return Outcome{}, appErr.New(appErr.GradeSystemError).WithMessage("no sandbox runner configured")
		}
		out, err = d.gradeCode(ctx, question, req)
		if err != nil {
			return Outcome{}, err
		}
	default:
		return Outcome{}, appErr.Newf(appErr.UnknownQuestionType, "unknown question type %q", question.Type)
	}
	d.metrics.ObserveGrade(ctx, string(question.Type), out.Verdict.Score, time.Since(start))
	return out, nil
}

func scoreVerdict(score float64) model.Verdict {
	return model.Verdict{Status: score == 1.0, Score: score}
}

// SelectTestCases returns the cases used in mode, in id order.
func SelectTestCases(cases []model.TestCase, mode Mode) []model.TestCase {
	if mode == ModeSample {
		if len(cases) > SampleCaseCount {
			return cases[:SampleCaseCount]
		}
		return cases
	}
	if len(cases) <= SampleCaseCount {
		return nil
	}
	return cases[SampleCaseCount:]
}

func testCaseIDs(cases []model.TestCase) []int64 {
	ids := make([]int64, len(cases))
	for i, tc := range cases {
		ids[i] = tc.ID
	}
	return ids
}

var errNoCases = errors.New("no test cases selected")
