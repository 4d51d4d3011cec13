//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package source

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

func signalGroup(cmd *exec.Cmd, _ bool) {
	_ = cmd.Process.Kill()
}
