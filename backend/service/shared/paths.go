package shared

import (
	"os"
	"path/filepath"
	"runtime"
)

// 离线中国 IP 列表文件名（放在程序目录）
const ChinaIPListFile = "chn_ip.txt"

// 中国 IP 列表缓存文件名（放在配置目录，永久有效）
const ChinaIPCacheFile = "china_ip_list.json"

// 配置文件名
const ConfigFileName = "config.json"

// ConfigDir 返回平台约定的用户配置目录。
//
//   - Windows: %APPDATA%\Halo
//   - macOS:   ~/Library/Application Support/Halo
//   - 其他:    ~/.config/halo
func ConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base, _ = os.UserHomeDir()
		}
		return filepath.Join(base, "Halo")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Halo")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "halo")
	}
}

// AppDir 返回程序所在目录（内核二进制与离线 IP 列表的首选查找位置）
func AppDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if real, err := filepath.EvalSymlinks(exe); err == nil && real != "" {
		exe = real
	}
	return filepath.Dir(exe)
}
