//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the child in its own group so a timeout kills
// everything it spawned, not only the interpreter.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
