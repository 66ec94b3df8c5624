package notify

import (
	"log"
	"strings"

	"github.com/gen2brain/beeep"
)

// Notifier 桌面通知。
// 发送失败只记日志，从不影响调用方的控制流。
type Notifier struct {
	enabled bool
	appName string

	// 测试替换点
	send func(title, message, icon string) error
}

func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		appName: "Halo",
		send: func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		},
	}
}

// Notify 发送一条桌面通知
func (n *Notifier) Notify(title, message string) {
	if n == nil || !n.enabled {
		return
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = n.appName
	}
	message = strings.TrimSpace(message)
	if len(message) > 800 {
		message = message[:800] + "..."
	}
	if err := n.send(title, message, ""); err != nil {
		log.Printf("[Notify] desktop notification failed: %v", err)
	}
}

// KernelStopped 内核退出（主动停止或意外退出）的通知
func (n *Notifier) KernelStopped(unexpected bool) {
	if unexpected {
		n.Notify("代理已停止", "内核进程意外退出，系统代理已关闭")
		return
	}
	n.Notify("代理已停止", "内核进程已退出")
}

// KernelStarted 内核启动成功的通知
func (n *Notifier) KernelStarted(profileName string) {
	n.Notify("代理已启动", "正在使用配置: "+profileName)
}
