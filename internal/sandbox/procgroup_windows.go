//go:build windows

package sandbox

import "os/exec"

// setupProcessGroup is a no-op on Windows; the default CommandContext
// cancel kills the direct child only.
func setupProcessGroup(cmd *exec.Cmd) {}
