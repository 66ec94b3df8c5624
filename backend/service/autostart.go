package service

import "log"

// AutostartManager 开机自启注册器。
// 具体的注册机制（注册表 run 键 / LaunchAgent / desktop entry）属于平台
// 协作方，核心只保存偏好并委托出去。
type AutostartManager interface {
	Set(enabled bool) error
}

// LogOnlyAutostart 缺省实现：只记录偏好，不做系统注册
type LogOnlyAutostart struct{}

func (LogOnlyAutostart) Set(enabled bool) error {
	log.Printf("[Autostart] preference recorded: %v (no platform registrar configured)", enabled)
	return nil
}
