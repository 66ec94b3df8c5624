package supervisor

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"halo/backend/domain"
	"halo/backend/service/shared"
)

// BuildArgs 根据配置确定性地构建内核启动参数。
// 与默认值相同或为空的可选字段不会出现在参数里；-routing 总是存在。
func BuildArgs(profile domain.ServerProfile) []string {
	args := []string{}
	if profile.Server != "" {
		args = append(args, "-f", profile.Server)
	}
	if profile.Listen != "" {
		args = append(args, "-l", profile.Listen)
	}
	if profile.Token != "" {
		args = append(args, "-token", profile.Token)
	}
	if profile.IP != "" {
		args = append(args, "-ip", profile.IP)
	}
	if profile.DNS != "" && profile.DNS != domain.DefaultDNS {
		args = append(args, "-dns", profile.DNS)
	}
	if profile.ECH != "" && profile.ECH != domain.DefaultECH {
		args = append(args, "-ech", profile.ECH)
	}
	mode := profile.RoutingMode
	if !mode.IsValid() {
		mode = domain.RoutingBypassCN
	}
	args = append(args, "-routing", string(mode))
	return args
}

// FindExecutable 按固定顺序查找内核可执行文件：
// 程序目录 → 当前工作目录 → PATH。
// 返回找到的路径（未找到时为空）以及已检查的位置（用于诊断输出）。
func FindExecutable(name string) (string, []string) {
	exeName := name
	if runtime.GOOS == "windows" {
		exeName = name + ".exe"
	}

	dirs := []string{shared.AppDir()}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}

	searched := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		path := filepath.Join(dir, exeName)
		searched = append(searched, path)
		if resolved := checkCandidate(path); resolved != "" {
			return resolved, searched
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, searched
	}
	return "", searched
}

// checkCandidate 检查候选路径是否是可运行的内核二进制。
// Windows 只认 .exe（或 PE 文件头）；Unix 要求执行权限，或识别出
// ELF/Mach-O/shebang 后补一次执行权限。
func checkCandidate(path string) string {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}

	if runtime.GOOS == "windows" {
		if filepath.Ext(path) == ".exe" {
			return path
		}
		if hasBinaryHeader(path, [][]byte{{'M', 'Z'}}) {
			return path
		}
		return ""
	}

	if info.Mode()&0o111 != 0 {
		return path
	}

	// 无执行权限但内容像二进制：尝试补权限（打包/下载后常见）
	if hasBinaryHeader(path, [][]byte{
		{0x7f, 'E', 'L', 'F'},
		{0xfe, 0xed, 0xfa},
		{0xcf, 0xfa, 0xed, 0xfe},
		{'#', '!'},
	}) {
		if err := os.Chmod(path, 0o755); err == nil {
			return path
		}
	}
	return ""
}

func hasBinaryHeader(path string, magics [][]byte) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 4)
	n, err := f.Read(header)
	if err != nil || n == 0 {
		return false
	}
	header = header[:n]

	for _, magic := range magics {
		if len(header) >= len(magic) && bytes.Equal(header[:len(magic)], magic) {
			return true
		}
	}
	return false
}
