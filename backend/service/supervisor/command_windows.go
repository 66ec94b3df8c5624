//go:build windows
// +build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// newCommand 构建内核启动命令；Windows 下隐藏控制台窗口
func newCommand(exePath string, args ...string) *exec.Cmd {
	cmd := exec.Command(exePath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}
	return cmd
}

// terminate Windows 没有可靠的 SIGTERM 等价物，直接 kill
func terminate(proc *os.Process) error {
	return proc.Kill()
}
