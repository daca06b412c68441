package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/shlex"

	"quizsys/internal/grading/sandbox/observer"
	appErr "quizsys/pkg/errors"
)

const (
	DefaultCommand     = "python3 {file}"
	DefaultExtension   = ".py"
	DefaultTimeout     = 5 * time.Second
	DefaultOutputLimit = 1 << 20
	fileToken          = "{file}"
	waitDelay          = 500 * time.Millisecond
)

var submissionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config controls how programs are launched.
type Config struct {
	// Command is split with shell quoting rules; {file} expands to the script path.
	Command string `yaml:"command"`
	// Extension is appended to the script file name.
	Extension string `yaml:"extension"`
	// WorkDir holds the per-submission script files; created on demand.
	WorkDir string `yaml:"workDir" env:"QUIZ_SANDBOX_WORKDIR"`
	// Timeout is the wall-clock deadline of one run.
	Timeout time.Duration `yaml:"timeout"`
	// OutputLimitBytes caps stdout and stderr separately; the rest is discarded.
	OutputLimitBytes int `yaml:"outputLimitBytes"`
	// Env replaces the child environment when not empty.
	Env []string `yaml:"env"`
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Command) == "" {
		c.Command = DefaultCommand
	}
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "quizsys-sandbox")
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.OutputLimitBytes <= 0 {
		c.OutputLimitBytes = DefaultOutputLimit
	}
}

// ProcessRunner writes the program to a file and runs the interpreter on it.
// It relies on the deadline only; no privilege or resource restriction is applied.
type ProcessRunner struct {
	cfg     Config
	argv    []string
	metrics observer.MetricsRecorder
}

// NewProcessRunner validates the command template.
func NewProcessRunner(cfg Config, metrics observer.MetricsRecorder) (*ProcessRunner, error) {
	cfg.applyDefaults()
	argv, err := shlex.Split(cfg.Command)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse sandbox command failed")
	}
	if len(argv) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("sandbox command is empty")
	}
	if !strings.Contains(cfg.Command, fileToken) {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("sandbox command must reference {file}")
	}
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &ProcessRunner{cfg: cfg, argv: argv, metrics: metrics}, nil
}

// ScriptPath returns where the program of submissionID is written.
func (r *ProcessRunner) ScriptPath(submissionID string) string {
	return filepath.Join(r.cfg.WorkDir, "script_"+submissionID+r.cfg.Extension)
}

func (r *ProcessRunner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if !submissionIDPattern.MatchString(req.SubmissionID) {
		return RunResult{}, appErr.Newf(appErr.InvalidParams, "invalid submission id %q", req.SubmissionID)
	}
	if err := os.MkdirAll(r.cfg.WorkDir, 0o755); err != nil {
		return RunResult{}, appErr.Wrapf(err, appErr.SandboxFailure, "create sandbox dir failed")
	}
	path := r.ScriptPath(req.SubmissionID)
	defer func() {
		_ = os.Remove(path)
	}()
	if err := os.WriteFile(path, []byte(req.Program), 0o644); err != nil {
		return RunResult{}, appErr.Wrapf(err, appErr.SandboxFailure, "write program failed")
	}

	res, outcome, err := r.execute(ctx, path, req.Input)
	r.metrics.ObserveRun(ctx, outcome, res.Duration)
	return res, err
}

func (r *ProcessRunner) execute(ctx context.Context, path, input string) (RunResult, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := make([]string, len(r.argv))
	for i, arg := range r.argv {
		args[i] = strings.ReplaceAll(arg, fileToken, path)
	}
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = r.cfg.WorkDir
	if len(r.cfg.Env) > 0 {
		cmd.Env = r.cfg.Env
	}
	cmd.Stdin = strings.NewReader(input)
	stdout := newLimitedBuffer(r.cfg.OutputLimitBytes)
	stderr := newLimitedBuffer(r.cfg.OutputLimitBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RunResult{}, observer.OutcomeError, appErr.Wrapf(err, appErr.SandboxFailure, "start interpreter failed")
	}
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		// Caller went away; the run says nothing about the program.
		return RunResult{Duration: elapsed}, observer.OutcomeError, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return RunResult{
			ErrorTail: TimeoutMessage,
			ExitCode:  -1,
			TimedOut:  true,
			Duration:  elapsed,
		}, observer.OutcomeTimeout, nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return RunResult{Duration: elapsed}, observer.OutcomeError, appErr.Wrapf(waitErr, appErr.SandboxFailure, "wait interpreter failed")
	}

	res := RunResult{
		Stdout:    stdout.String(),
		ErrorTail: lastLine(stderr.String()),
		ExitCode:  cmd.ProcessState.ExitCode(),
		Duration:  elapsed,
	}
	if res.ExitCode != 0 {
		return res, observer.OutcomeNonZero, nil
	}
	return res, observer.OutcomeOK, nil
}

// lastLine returns the last line of s that is not blank.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimRight(lines[i], " \t\r"); strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// limitedBuffer keeps the first limit bytes written and drops the rest
// while still reporting full writes, so the child never blocks on a full pipe.
type limitedBuffer struct {
	buf   []byte
	limit int
}

func newLimitedBuffer(limit int) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}

var _ Runner = (*ProcessRunner)(nil)
