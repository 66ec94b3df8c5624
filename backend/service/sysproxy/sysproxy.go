package sysproxy

import (
	"fmt"
	"log"
	"net"
	"runtime"
	"strconv"
	"strings"

	"halo/backend/domain"
	"halo/backend/service/shared"
)

// Controller 系统代理控制器。
//
// 把"代理开/关 + 监听地址 + 路由模式"翻译成对 OS 代理配置的写入。
// 平台 API 的失败不向上抛异常，统一折算成 (ok, 诊断文本)。
type Controller struct {
	// 测试替换点，默认走平台实现
	apply func(shared.SystemProxyConfig) (string, error)
}

func New() *Controller {
	return &Controller{apply: shared.ApplySystemProxy}
}

// Apply 应用或清除系统代理。
//
// 路由模式为 none 时从不触碰 OS 设置，直接成功返回；
// 关闭时只清除启用标志，不动代理地址和例外列表。
func (c *Controller) Apply(enabled bool, listen string, mode domain.RoutingMode) (bool, string) {
	if mode == domain.RoutingNone {
		return true, ""
	}

	cfg := shared.SystemProxyConfig{Enabled: enabled}
	if enabled {
		host, port, err := parseListen(listen)
		if err != nil {
			diag := fmt.Sprintf("无法解析监听地址 %q: %v", listen, err)
			log.Printf("[SystemProxy] %s", diag)
			return false, diag
		}
		cfg.Host = host
		cfg.Port = port
		cfg.BypassList = FixedBypassList()
	}

	diag, err := c.apply(cfg)
	if err != nil {
		log.Printf("[SystemProxy] apply failed (enabled=%v): %v", enabled, err)
		return false, err.Error()
	}
	if diag != "" {
		log.Printf("[SystemProxy] %s", diag)
	}
	log.Printf("[SystemProxy] applied: enabled=%v host=%s port=%d", enabled, cfg.Host, cfg.Port)
	return true, diag
}

// parseListen 从监听地址解出 host:port；缺 host 时回退到回环地址
func parseListen(listen string) (string, int, error) {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return "", 0, fmt.Errorf("empty listen address")
	}

	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		// 纯端口写法（"30000"）也接受
		if p, convErr := strconv.Atoi(listen); convErr == nil {
			return "127.0.0.1", p, validatePort(p)
		}
		return "", 0, err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, validatePort(port)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	return nil
}

// FixedBypassList 各平台固定的代理例外集合：回环、RFC1918 私网、
// 链路本地和平台自己的"本地"记号。与 geo-IP 通配符压缩是两回事。
func FixedBypassList() []string {
	base := []string{
		"localhost",
		"127.*",
		"10.*",
		"172.16.*", "172.17.*", "172.18.*", "172.19.*",
		"172.20.*", "172.21.*", "172.22.*", "172.23.*",
		"172.24.*", "172.25.*", "172.26.*", "172.27.*",
		"172.28.*", "172.29.*", "172.30.*", "172.31.*",
		"192.168.*",
	}
	switch runtime.GOOS {
	case "windows":
		return append(base, "<local>")
	case "darwin":
		return append(base, "169.254.*", "*.local")
	default:
		return append(base, "169.254.*")
	}
}
