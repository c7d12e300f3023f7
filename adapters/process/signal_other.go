//go:build !unix

package process

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

func signalStop(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
