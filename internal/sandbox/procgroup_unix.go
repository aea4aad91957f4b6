//go:build !windows

package sandbox

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup starts the script in its own process group so a timeout
// kills anything it spawned as well.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
}
