//go:build !windows

package procrunner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so killing it
// also kills any of its own children.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the process group rooted at cmd's pid.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
