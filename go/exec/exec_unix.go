//go:build unix

package exec

import (
	osexec "os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child into its own process group so that anything
// it spawns can be killed along with it.
func setProcessGroup(cmd *osexec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcess sends SIGKILL to the process, or to its whole group if it was
// started by setProcessGroup.
func killProcess(cmd *osexec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if cmd.SysProcAttr != nil && cmd.SysProcAttr.Setpgid && pid > 0 {
		if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
			// Negative pid targets the group: the benchmark driver and whatever it spawned.
			_ = unix.Kill(-pgid, unix.SIGKILL)
			return
		}
	}
	_ = cmd.Process.Kill()
}
