//go:build unix

package engine

import (
	"os/exec"
	"syscall"
)

// killProcessGroupOnCancel starts cmd as a group leader and, on cancel,
// signals the whole group so spawned children die with it.
func killProcessGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
}
