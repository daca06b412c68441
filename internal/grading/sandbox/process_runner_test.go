//go:build unix

package sandbox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizsys/internal/grading/sandbox"
	appErr "quizsys/pkg/errors"
)

func newShellRunner(t *testing.T, timeout time.Duration) (*sandbox.ProcessRunner, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "work")
	r, err := sandbox.NewProcessRunner(sandbox.Config{
		Command:   "sh {file}",
		Extension: ".sh",
		WorkDir:   dir,
		Timeout:   timeout,
	}, nil)
	require.NoError(t, err)
	return r, dir
}

func TestProcessRunnerCapturesStdout(t *testing.T) {
	r, _ := newShellRunner(t, 5*time.Second)

	res, err := r.Run(context.Background(), sandbox.RunRequest{
		SubmissionID: "11",
		Program:      "read a\nread b\necho $((a + b))\n",
		Input:        "2\n3\n",
	})
	require.NoError(t, err)
	require.Equal(t, "5\n", res.Stdout)
	require.Equal(t, 0, res.ExitCode)
	require.False(t, res.TimedOut)
	require.Empty(t, res.ErrorTail)
}

func TestProcessRunnerReportsLastStderrLine(t *testing.T) {
	r, _ := newShellRunner(t, 5*time.Second)

	res, err := r.Run(context.Background(), sandbox.RunRequest{
		SubmissionID: "12",
		Program:      "echo partial\necho 'Traceback' >&2\necho 'ZeroDivisionError: division by zero' >&2\necho >&2\nexit 3\n",
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Equal(t, "partial\n", res.Stdout)
	require.Equal(t, "ZeroDivisionError: division by zero", res.ErrorTail)
}

func TestProcessRunnerTimeout(t *testing.T) {
	r, _ := newShellRunner(t, 200*time.Millisecond)

	start := time.Now()
	res, err := r.Run(context.Background(), sandbox.RunRequest{
		SubmissionID: "13",
		Program:      "echo started\nsleep 30 &\nwhile true; do :; done\n",
	})
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	require.Empty(t, res.Stdout)
	require.Equal(t, sandbox.TimeoutMessage, res.ErrorTail)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessRunnerRemovesScript(t *testing.T) {
	r, dir := newShellRunner(t, 200*time.Millisecond)

	for _, program := range []string{"echo ok\n", "exit 1\n", "while true; do :; done\n"} {
		_, err := r.Run(context.Background(), sandbox.RunRequest{SubmissionID: "14", Program: program})
		require.NoError(t, err)
		_, statErr := os.Stat(r.ScriptPath("14"))
		require.True(t, os.IsNotExist(statErr), "script left behind for %q", program)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestProcessRunnerStartFailureIsSandboxError(t *testing.T) {
	r, err := sandbox.NewProcessRunner(sandbox.Config{
		Command: "/nonexistent/interpreter {file}",
		WorkDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), sandbox.RunRequest{SubmissionID: "15", Program: "x"})
	require.Error(t, err)
	require.True(t, appErr.Is(err, appErr.SandboxFailure))
	_, statErr := os.Stat(r.ScriptPath("15"))
	require.True(t, os.IsNotExist(statErr))
}

func TestProcessRunnerRejectsUnsafeSubmissionID(t *testing.T) {
	r, _ := newShellRunner(t, time.Second)
	_, err := r.Run(context.Background(), sandbox.RunRequest{SubmissionID: "../etc", Program: "echo"})
	require.Error(t, err)
}

func TestNewProcessRunnerRequiresFilePlaceholder(t *testing.T) {
	_, err := sandbox.NewProcessRunner(sandbox.Config{Command: "python3 main.py"}, nil)
	require.Error(t, err)
}
