//go:build windows

package procrunner

import "os/exec"

// setProcessGroup is a no-op on Windows; job objects would be the
// equivalent isolation primitive but are out of scope for this core.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills only the direct child process on Windows.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
