//go:build !windows && !darwin && !linux
// +build !windows,!darwin,!linux

package shared

import "errors"

func applySystemProxy(cfg SystemProxyConfig) (string, error) {
	if !cfg.Enabled {
		return "", nil
	}
	return "", errors.New("system proxy configuration not supported on this platform")
}
