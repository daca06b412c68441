// Package sandbox runs learner programs as short-lived child processes.
package sandbox

import (
	"context"
	"time"
)

// TimeoutMessage is reported as the error tail of a run that hit the deadline.
const TimeoutMessage = "execution did not terminate in time"

// RunRequest describes one program execution against one test input.
type RunRequest struct {
	SubmissionID string
	TestID       string
	Program      string
	Input        string
}

// RunResult captures what the program produced.
type RunResult struct {
	Stdout string
	// ErrorTail is the last non-empty stderr line, or TimeoutMessage.
	ErrorTail string
	ExitCode  int
	TimedOut  bool
	Duration  time.Duration
}

// Runner executes programs. A returned error means the sandbox itself failed;
// crashes and timeouts of the program are reported through RunResult.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}
