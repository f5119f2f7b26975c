//go:build windows

package infrastructure

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup detaches the tool into a new process group
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateProcess kills the process; Windows has no SIGTERM equivalent for console tools
func terminateProcess(cmd *exec.Cmd, grace time.Duration, done <-chan struct{}) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
