package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"quizsys/internal/grading/assembler"
	"quizsys/internal/grading/model"
	"quizsys/internal/grading/sandbox"
	appErr "quizsys/pkg/errors"
)

// forbiddenImportPatterns match anywhere in the text, including after a
// compound statement colon or inside a string literal.
var forbiddenImportPatterns = []*regexp.Regexp{
	// import os / import a, os / import os.path as p
	regexp.MustCompile(`\bimport\s+(?:[\w.]+(?:\s+as\s+\w+)?\s*,\s*)*(os|subprocess)\b`),
	// from os import x / from os.path import x
	regexp.MustCompile(`\bfrom\s+(os|subprocess)\b[\w.]*\s+import\b`),
	// __import__("os")
	regexp.MustCompile(`__import__\(\s*['"](os|subprocess)['"]`),
}

// ForbiddenImport reports the first disallowed module the program imports.
func ForbiddenImport(program string) (string, bool) {
	for _, p := range forbiddenImportPatterns {
		if m := p.FindStringSubmatch(program); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func (d *Dispatcher) gradeCode(ctx context.Context, question *model.Question, req Request) (Outcome, error) {
	cases := SelectTestCases(question.TestCases, req.Mode)
	allFailed := model.JoinIDs(testCaseIDs(cases))

	if module, found := ForbiddenImport(req.Response); found {
		return Outcome{Verdict: model.Verdict{
			Score:      0,
			ExtraInfo:  allFailed,
			CodeErrors: fmt.Sprintf("import of module '%s' is not allowed", module),
		}}, nil
	}

	program, err := assembler.Assemble(question.Template, req.Response)
	if err != nil {
		if errors.Is(err, assembler.ErrBlankMismatch) {
			return Outcome{Verdict: model.Verdict{
				Score:      0,
				ExtraInfo:  allFailed,
				CodeErrors: fmt.Sprintf("expected %d fragments separated by '%s'", assembler.CountBlanks(question.Template), assembler.FragmentSeparator),
			}}, nil
		}
		return Outcome{}, appErr.Wrapf(err, appErr.GradeSystemError, "assemble program failed")
	}

	// Cases are required only once the response is runnable.
	if len(cases) == 0 {
		return Outcome{}, appErr.Wrapf(errNoCases, appErr.TestCaseMissing,
			"question %d has no %s test cases", question.ID, req.Mode)
	}

	out := Outcome{Executed: true, Runs: make([]model.RunRecord, 0, len(cases))}
	var failed []int64
	errorTails := make([]string, 0)
	for _, tc := range cases {
		res, err := d.runner.Run(ctx, sandbox.RunRequest{
			SubmissionID: req.SubmissionID,
			TestID:       fmt.Sprintf("%d", tc.ID),
			Program:      program,
			Input:        tc.Input,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			return Outcome{}, appErr.Wrapf(err, appErr.SandboxFailure, "run test case %d failed", tc.ID)
		}
		passed := !res.TimedOut && outputsMatch(res.Stdout, tc.Output)
		if !passed {
			failed = append(failed, tc.ID)
		}
		if res.ErrorTail != "" {
			errorTails = append(errorTails, res.ErrorTail)
		}
		out.Runs = append(out.Runs, model.RunRecord{
			TestCaseID: tc.ID,
			Passed:     passed,
			Stdout:     res.Stdout,
			ErrorTail:  res.ErrorTail,
			ExitCode:   res.ExitCode,
			TimedOut:   res.TimedOut,
			DurationMs: res.Duration.Milliseconds(),
		})
	}

	slices.Sort(errorTails)
	n := len(cases)
	score := float64(n-len(failed)) / float64(n)
	out.Verdict = model.Verdict{
		Status:     score == 1.0,
		Score:      score,
		ExtraInfo:  model.JoinIDs(failed),
		CodeErrors: strings.Join(slices.Compact(errorTails), ";"),
	}
	return out, nil
}

// outputsMatch compares program output and expected output ignoring trailing whitespace.
func outputsMatch(got, want string) bool {
	return strings.TrimRight(got, " \t\r\n") == strings.TrimRight(want, " \t\r\n")
}
