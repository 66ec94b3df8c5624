package shared

// SystemProxyConfig describes the desired system proxy state.
// It is intentionally OS-agnostic; platform-specific implementations decide
// how to apply it.
type SystemProxyConfig struct {
	Enabled bool

	// 内核监听端点（SOCKS/HTTP 混合入站，由 ech-workers 决定）
	Host string
	Port int

	// 绕过列表；各平台自行决定分隔符与语法
	BypassList []string
}

// ApplySystemProxy applies the system proxy settings for the current platform.
// It returns a non-empty message when the operation is a best-effort / partial
// apply (e.g. unsupported platform/desktop).
func ApplySystemProxy(cfg SystemProxyConfig) (string, error) {
	return applySystemProxy(cfg)
}
