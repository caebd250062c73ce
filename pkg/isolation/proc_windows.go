//go:build windows

package isolation

import (
	"os"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows; process groups are a Unix concept.
func setSysProcAttr(cmd *exec.Cmd) {
}

// setCancelFunc kills the interpreter process on context cancellation.
func setCancelFunc(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Signal(os.Kill)
	}
}
