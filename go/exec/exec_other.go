//go:build !unix

package exec

import (
	osexec "os/exec"
)

func setProcessGroup(cmd *osexec.Cmd) {}

func killProcess(cmd *osexec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
