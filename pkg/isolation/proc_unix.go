//go:build !windows

package isolation

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the interpreter in its own process group so skill
// code cannot outlive a cancellation by forking.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// setCancelFunc kills the whole process group on context cancellation.
func setCancelFunc(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
