//go:build linux || darwin

package sandbox

import (
	"os/exec"
	"syscall"
)

// killOnDropAttr starts the command in its own process group so a timeout
// or Ctrl-C can kill the whole tree, not just the direct child.
func killOnDropAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
