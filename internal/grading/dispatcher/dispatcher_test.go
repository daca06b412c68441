package dispatcher_test

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizsys/internal/grading/dispatcher"
	"quizsys/internal/grading/model"
	"quizsys/internal/grading/sandbox"
	appErr "quizsys/pkg/errors"
)

// echoRunner answers runs from outputs keyed by test input and prints "4" otherwise.
type echoRunner struct {
	mu       sync.Mutex
	outputs  map[string]sandbox.RunResult
	programs []string
	inputs   []string
	err      error
}

func (r *echoRunner) Run(_ context.Context, req sandbox.RunRequest) (sandbox.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs = append(r.programs, req.Program)
	r.inputs = append(r.inputs, req.Input)
	if r.err != nil {
		return sandbox.RunResult{}, r.err
	}
	if res, ok := r.outputs[req.Input]; ok {
		return res, nil
	}
	return sandbox.RunResult{Stdout: "4\n"}, nil
}

func (r *echoRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.programs)
}

func codeQuestion(n int, template string) *model.Question {
	q := &model.Question{ID: 7, Type: model.QuestionTypeCode, Template: template}
	for i := 1; i <= n; i++ {
		q.TestCases = append(q.TestCases, model.TestCase{ID: int64(i), Input: "", Output: "4"})
	}
	return q
}

func TestChoiceGradingIgnoresOrder(t *testing.T) {
	d := dispatcher.New(nil, nil)
	q := &model.Question{ID: 1, Type: model.QuestionTypeChoice, Choices: []model.Choice{
		{ID: 1, IsCorrect: true}, {ID: 2, IsCorrect: true}, {ID: 3},
	}}

	for _, response := range []string{"1;2", "2;1", "1;2;2"} {
		v, err := d.Grade(context.Background(), q, dispatcher.Request{Response: response})
		require.NoError(t, err)
		require.True(t, v.Status, "response %q", response)
		require.Equal(t, 1.0, v.Score)
	}
	for _, response := range []string{"1", "1;2;3", "", "a;b", " 2 ; 1 ", "01;2", "1;2;"} {
		v, err := d.Grade(context.Background(), q, dispatcher.Request{Response: response})
		require.NoError(t, err)
		require.False(t, v.Status, "response %q", response)
		require.Equal(t, 0.0, v.Score)
	}
}

func TestFillBlankIsExactMatch(t *testing.T) {
	d := dispatcher.New(nil, nil)
	q := &model.Question{ID: 2, Type: model.QuestionTypeFillBlank, Answers: []model.Answer{
		{ID: 1, Content: "Paris"}, {ID: 2, Content: "paris, france"},
	}}

	cases := map[string]bool{
		"Paris":         true,
		"paris, france": true,
		"Paris ":        false,
		"paris":         false,
		"":              false,
	}
	for response, want := range cases {
		v, err := d.Grade(context.Background(), q, dispatcher.Request{
			ResponseType: model.QuestionTypeFillBlank,
			Response:     response,
		})
		require.NoError(t, err)
		require.Equal(t, want, v.Status, "response %q", response)
	}
}

func TestTypeMismatchIsCallerError(t *testing.T) {
	d := dispatcher.New(nil, nil)
	q := &model.Question{ID: 3, Type: model.QuestionTypeChoice}

	_, err := d.Grade(context.Background(), q, dispatcher.Request{ResponseType: model.QuestionTypeCode, Response: "1"})
	require.True(t, appErr.Is(err, appErr.QuestionTypeMismatch))
}

func TestUnknownQuestionType(t *testing.T) {
	d := dispatcher.New(nil, nil)
	_, err := d.Grade(context.Background(), &model.Question{ID: 4, Type: "ESSAY"}, dispatcher.Request{Response: "x"})
	require.True(t, appErr.Is(err, appErr.UnknownQuestionType))
}

func TestCodeAuthoritativeUsesCasesAfterSamples(t *testing.T) {
	runner := &echoRunner{}
	d := dispatcher.New(runner, nil)

	out, err := d.GradeDetailed(context.Background(), codeQuestion(5, ""), dispatcher.Request{
		SubmissionID: "9",
		Response:     "print(2+2)",
	})
	require.NoError(t, err)
	require.Equal(t, model.Verdict{Status: true, Score: 1.0}, out.Verdict)
	require.Equal(t, 2, runner.calls())
	require.Len(t, out.Runs, 2)
	require.Equal(t, int64(4), out.Runs[0].TestCaseID)
	require.Equal(t, int64(5), out.Runs[1].TestCaseID)
	require.Equal(t, []string{"print(2+2)", "print(2+2)"}, runner.programs)
}

func TestCodeSampleModeUsesFirstThree(t *testing.T) {
	runner := &echoRunner{}
	d := dispatcher.New(runner, nil)

	out, err := d.GradeDetailed(context.Background(), codeQuestion(5, ""), dispatcher.Request{
		SubmissionID: "9",
		Response:     "print(2+2)",
		Mode:         dispatcher.ModeSample,
	})
	require.NoError(t, err)
	require.True(t, out.Verdict.Status)
	require.Equal(t, 3, runner.calls())
}

func TestCodeFractionalScoreAndDiagnostics(t *testing.T) {
	q := &model.Question{ID: 8, Type: model.QuestionTypeCode}
	for i := 1; i <= 7; i++ {
		q.TestCases = append(q.TestCases, model.TestCase{ID: int64(10 + i), Input: string(rune('a' + i)), Output: "4"})
	}
	runner := &echoRunner{outputs: map[string]sandbox.RunResult{
		"e": {Stdout: "4   \n\n"},
		"f": {Stdout: "", ErrorTail: "ZeroDivisionError: division by zero", ExitCode: 1},
		"g": {ErrorTail: sandbox.TimeoutMessage, TimedOut: true, ExitCode: -1},
		"h": {Stdout: "5\n", ErrorTail: "ZeroDivisionError: division by zero"},
	}}
	d := dispatcher.New(runner, nil)

	v, err := d.Grade(context.Background(), q, dispatcher.Request{SubmissionID: "1", Response: "x"})
	require.NoError(t, err)
	require.False(t, v.Status)
	require.InDelta(t, 0.25, v.Score, 1e-9)
	require.Equal(t, "15;16;17", v.ExtraInfo)
	require.Equal(t, "ZeroDivisionError: division by zero;"+sandbox.TimeoutMessage, v.CodeErrors)
}

func TestCodeForbiddenImportIsRejectedWithoutRunning(t *testing.T) {
	programs := []string{
		"import os\nprint(4)",
		"import sys, os\nprint(4)",
		"from subprocess import run\nrun(['ls'])",
		"x = __import__('os')",
		"print(1); import subprocess",
		"if True: import os\nos.system('id')",
		"try: import subprocess\nexcept ImportError: pass",
		"exec('import os')",
		"def f(): import os\nf()",
		"x = 1\nfrom os.path import join",
	}
	for _, program := range programs {
		runner := &echoRunner{}
		d := dispatcher.New(runner, nil)
		v, err := d.Grade(context.Background(), codeQuestion(5, ""), dispatcher.Request{SubmissionID: "1", Response: program})
		require.NoError(t, err, program)
		require.Equal(t, 0.0, v.Score, program)
		require.False(t, v.Status)
		require.Equal(t, "4;5", v.ExtraInfo)
		require.Contains(t, v.CodeErrors, "is not allowed")
		require.Zero(t, runner.calls(), program)
	}
}

func TestForbiddenImportLeavesSimilarNamesAlone(t *testing.T) {
	for _, program := range []string{"import osmium", "import sys\nprint('os')", "# use os later\nprint(4)", "from ossify import x"} {
		_, found := dispatcher.ForbiddenImport(program)
		require.False(t, found, program)
	}
}

func TestCodeStaticRejectionPrecedesCaseSelection(t *testing.T) {
	runner := &echoRunner{}
	d := dispatcher.New(runner, nil)

	v, err := d.Grade(context.Background(), codeQuestion(3, ""), dispatcher.Request{SubmissionID: "1", Response: "import os"})
	require.NoError(t, err)
	require.Equal(t, 0.0, v.Score)
	require.Empty(t, v.ExtraInfo)
	require.Contains(t, v.CodeErrors, "'os' is not allowed")

	v, err = d.Grade(context.Background(), codeQuestion(3, "a = ___\nb = ___"), dispatcher.Request{SubmissionID: "1", Response: "2"})
	require.NoError(t, err)
	require.Equal(t, 0.0, v.Score)
	require.Zero(t, runner.calls())
}

func TestCodeBlankMismatchFailsWithoutRunning(t *testing.T) {
	runner := &echoRunner{}
	d := dispatcher.New(runner, nil)

	v, err := d.Grade(context.Background(), codeQuestion(5, "a = ___\nb = ___\nprint(a+b)"), dispatcher.Request{
		SubmissionID: "1",
		Response:     "2",
	})
	require.NoError(t, err)
	require.Equal(t, 0.0, v.Score)
	require.Equal(t, "4;5", v.ExtraInfo)
	require.Zero(t, runner.calls())
}

func TestCodeAssemblesTemplateBeforeRunning(t *testing.T) {
	runner := &echoRunner{}
	d := dispatcher.New(runner, nil)

	_, err := d.Grade(context.Background(), codeQuestion(4, "def f():\n    return ___\nprint(f())"), dispatcher.Request{
		SubmissionID: "1",
		Response:     "4",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"def f():\n    return 4\nprint(f())"}, runner.programs)
}

func TestCodeWithoutAuthoritativeCasesIsConfigurationError(t *testing.T) {
	runner := &echoRunner{}
	d := dispatcher.New(runner, nil)

	_, err := d.Grade(context.Background(), codeQuestion(3, ""), dispatcher.Request{SubmissionID: "1", Response: "print(4)"})
	require.True(t, appErr.Is(err, appErr.TestCaseMissing))

	_, err = d.Grade(context.Background(), codeQuestion(0, ""), dispatcher.Request{
		SubmissionID: "1", Response: "print(4)", Mode: dispatcher.ModeSample,
	})
	require.True(t, appErr.Is(err, appErr.TestCaseMissing))
	require.Zero(t, runner.calls())
}

func TestCodeSandboxFailureAborts(t *testing.T) {
	runner := &echoRunner{err: errors.New("disk full")}
	d := dispatcher.New(runner, nil)

	_, err := d.Grade(context.Background(), codeQuestion(5, ""), dispatcher.Request{SubmissionID: "1", Response: "print(4)"})
	require.True(t, appErr.Is(err, appErr.SandboxFailure))
}

func TestSelectTestCases(t *testing.T) {
	cases := codeQuestion(5, "").TestCases
	require.Len(t, dispatcher.SelectTestCases(cases, dispatcher.ModeSample), 3)
	require.Len(t, dispatcher.SelectTestCases(cases, dispatcher.ModeAuthoritative), 2)
	require.Len(t, dispatcher.SelectTestCases(cases[:2], dispatcher.ModeSample), 2)
	require.Empty(t, dispatcher.SelectTestCases(cases[:3], dispatcher.ModeAuthoritative))
}

func TestCodeEndToEnd(t *testing.T) {
	cases := []struct {
		interpreter string
		command     string
		extension   string
		program     string
	}{
		{interpreter: "python3", command: "python3 {file}", extension: ".py", program: "print(2+2)"},
		{interpreter: "sh", command: "sh {file}", extension: ".sh", program: "echo $((2+2))"},
	}
	for _, tc := range cases {
		t.Run(tc.interpreter, func(t *testing.T) {
			if _, err := exec.LookPath(tc.interpreter); err != nil {
				t.Skipf("%s not available", tc.interpreter)
			}
			runner, err := sandbox.NewProcessRunner(sandbox.Config{
				Command:   tc.command,
				Extension: tc.extension,
				WorkDir:   t.TempDir(),
				Timeout:   5 * time.Second,
			}, nil)
			require.NoError(t, err)
			d := dispatcher.New(runner, nil)

			v, err := d.Grade(context.Background(), codeQuestion(5, ""), dispatcher.Request{
				SubmissionID: "42",
				Response:     tc.program,
			})
			require.NoError(t, err)
			require.Equal(t, model.Verdict{Status: true, Score: 1.0, ExtraInfo: ""}, v)
		})
	}
}
