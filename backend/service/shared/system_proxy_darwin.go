//go:build darwin
// +build darwin

package shared

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func applySystemProxy(cfg SystemProxyConfig) (string, error) {
	if _, err := exec.LookPath("networksetup"); err != nil {
		return "networksetup 未找到：已保存设置，但无法自动切换系统代理", nil
	}

	services, err := listNetworkServices()
	if err != nil {
		return "", err
	}

	// 逐服务 best-effort：部分网络服务不支持代理设置，跳过即可
	for _, svc := range services {
		if !cfg.Enabled {
			_ = runNetworksetup("-setsocksfirewallproxystate", svc, "off")
			continue
		}

		if err := runNetworksetup("-setsocksfirewallproxy", svc, cfg.Host, strconv.Itoa(cfg.Port)); err != nil {
			continue
		}
		if len(cfg.BypassList) > 0 {
			args := append([]string{"-setsocksfirewallproxybypassdomains", svc}, cfg.BypassList...)
			_ = runNetworksetup(args...)
		}
		_ = runNetworksetup("-setsocksfirewallproxystate", svc, "on")
	}

	return "", nil
}

func listNetworkServices() ([]string, error) {
	cmd := exec.Command("networksetup", "-listallnetworkservices")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("networksetup -listallnetworkservices failed: %v (%s)", err, msg)
	}

	lines := strings.Split(string(out), "\n")
	services := make([]string, 0, len(lines))
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		if strings.HasPrefix(s, "An asterisk") {
			continue
		}
		// Disabled services are prefixed with "*".
		if strings.HasPrefix(s, "*") {
			continue
		}
		services = append(services, s)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("no network services found")
	}
	return services, nil
}

func runNetworksetup(args ...string) error {
	cmd := exec.Command("networksetup", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("networksetup %s failed: %v (%s)", strings.Join(args, " "), err, msg)
	}
	return nil
}
