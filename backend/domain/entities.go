package domain

import (
	"strings"
	"time"
)

// RoutingMode 分流模式（由 ech-workers 内核解释；系统代理层只关心 none）
type RoutingMode string

const (
	RoutingGlobal   RoutingMode = "global"
	RoutingBypassCN RoutingMode = "bypass_cn"
	RoutingNone     RoutingMode = "none"
)

// IsValid 检查是否是已知分流模式
func (m RoutingMode) IsValid() bool {
	switch m {
	case RoutingGlobal, RoutingBypassCN, RoutingNone:
		return true
	}
	return false
}

// 内核参数默认值：与默认值相同的字段不会出现在启动参数里
const (
	DefaultDNS = "dns.alidns.com/dns-query"
	DefaultECH = "cloudflare-ech.com"
)

// ServerProfile 一组服务器连接参数
// 字段语义由 ech-workers 内核定义，这里只做透传；Server/Listen 在启动时校验非空。
type ServerProfile struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Server      string      `json:"server"`
	Listen      string      `json:"listen"`
	Token       string      `json:"token"`
	IP          string      `json:"ip"`
	DNS         string      `json:"dns"`
	ECH         string      `json:"ech"`
	RoutingMode RoutingMode `json:"routing_mode"`
}

// Normalize 补齐缺省分流模式
func (p ServerProfile) Normalize() ServerProfile {
	if !p.RoutingMode.IsValid() {
		p.RoutingMode = RoutingBypassCN
	}
	p.Name = strings.TrimSpace(p.Name)
	return p
}

// DefaultProfile 首次运行时自动种入的默认配置
func DefaultProfile() ServerProfile {
	return ServerProfile{
		Name:        "default",
		Server:      "example.com:443",
		Listen:      "127.0.0.1:30000",
		Token:       "",
		IP:          "saas.sin.fan",
		DNS:         DefaultDNS,
		ECH:         DefaultECH,
		RoutingMode: RoutingBypassCN,
	}
}

// LastRunState 上一次会话的运行状态，退出前保存，启动时用于恢复
type LastRunState struct {
	WasRunning         bool `json:"was_running"`
	SystemProxyEnabled bool `json:"system_proxy_enabled"`
	AutoStartChecked   bool `json:"auto_start_checked"`
}

// AppState config.json 的完整结构
type AppState struct {
	Servers         []ServerProfile `json:"servers"`
	CurrentServerID string          `json:"current_server_id"`
	LastState       LastRunState    `json:"last_state"`

	GeneratedAt time.Time `json:"generatedAt,omitempty"`
}
