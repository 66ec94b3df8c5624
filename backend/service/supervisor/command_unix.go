//go:build !windows
// +build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

func newCommand(exePath string, args ...string) *exec.Cmd {
	return exec.Command(exePath, args...)
}

// terminate 发送 SIGTERM，给内核清理连接的机会
func terminate(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
