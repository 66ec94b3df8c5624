package supervisor

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"halo/backend/domain"
	"halo/backend/repository"
)

func TestBuildArgs(t *testing.T) {
	t.Run("defaults suppressed", func(t *testing.T) {
		p := domain.ServerProfile{
			Server:      "example.com:443",
			Listen:      "127.0.0.1:30000",
			DNS:         domain.DefaultDNS,
			ECH:         domain.DefaultECH,
			RoutingMode: domain.RoutingBypassCN,
		}
		got := BuildArgs(p)
		want := []string{"-f", "example.com:443", "-l", "127.0.0.1:30000", "-routing", "bypass_cn"}
		assertArgs(t, got, want)
	})

	t.Run("all fields", func(t *testing.T) {
		p := domain.ServerProfile{
			Server:      "s.example.org:8443",
			Listen:      "127.0.0.1:1080",
			Token:       "secret",
			IP:          "1.2.3.4",
			DNS:         "dns.example.net/dns-query",
			ECH:         "ech.example.net",
			RoutingMode: domain.RoutingGlobal,
		}
		got := BuildArgs(p)
		want := []string{
			"-f", "s.example.org:8443",
			"-l", "127.0.0.1:1080",
			"-token", "secret",
			"-ip", "1.2.3.4",
			"-dns", "dns.example.net/dns-query",
			"-ech", "ech.example.net",
			"-routing", "global",
		}
		assertArgs(t, got, want)
	})

	t.Run("invalid mode falls back to bypass_cn", func(t *testing.T) {
		p := domain.ServerProfile{Server: "a:1", Listen: "b:2", RoutingMode: "bogus"}
		got := BuildArgs(p)
		if got[len(got)-2] != "-routing" || got[len(got)-1] != "bypass_cn" {
			t.Fatalf("expected trailing -routing bypass_cn, got %v", got)
		}
	})

	t.Run("routing always present", func(t *testing.T) {
		got := BuildArgs(domain.ServerProfile{})
		assertArgs(t, got, []string{"-routing", "bypass_cn"})
	})
}

func assertArgs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("args mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestStartMissingExecutable(t *testing.T) {
	s := New()
	s.SetBinaryName("halo-test-kernel-that-does-not-exist")

	events, err := s.Start(domain.ServerProfile{Server: "a:1", Listen: "b:2"})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	var logs []string
	finished := 0
	for ev := range events {
		switch ev.Kind {
		case EventLog:
			if finished > 0 {
				t.Fatalf("log line after Finished: %q", ev.Line)
			}
			logs = append(logs, ev.Line)
		case EventFinished:
			finished++
		}
	}
	if finished != 1 {
		t.Fatalf("expected exactly one Finished event, got %d", finished)
	}
	if len(logs) == 0 {
		t.Fatalf("expected diagnostic log lines before Finished")
	}
	if !strings.Contains(logs[0], "halo-test-kernel-that-does-not-exist") {
		t.Fatalf("diagnostic does not name the binary: %q", logs[0])
	}
	if s.Running() {
		t.Fatalf("supervisor still marked running after Finished")
	}
}

// writeFakeKernel 在临时目录放一个 shell 脚本充当内核，并把目录挂到 PATH 前面
func writeFakeKernel(t *testing.T, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake kernel scripts require a unix shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake kernel: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestStartNaturalExit(t *testing.T) {
	writeFakeKernel(t, "halo-fake-kernel", "echo one\necho two\nexit 0\n")

	s := New()
	s.SetBinaryName("halo-fake-kernel")
	events, err := s.Start(domain.ServerProfile{Server: "a:1", Listen: "b:2"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var logs []string
	finished := 0
	for ev := range events {
		if ev.Kind == EventLog {
			logs = append(logs, ev.Line)
		} else {
			finished++
		}
	}
	if finished != 1 {
		t.Fatalf("expected one Finished, got %d", finished)
	}
	if len(logs) != 2 || logs[0] != "one" || logs[1] != "two" {
		t.Fatalf("unexpected log lines: %v", logs)
	}
	if s.Running() {
		t.Fatalf("still running after natural exit")
	}
}

func TestStartWhileRunning(t *testing.T) {
	writeFakeKernel(t, "halo-fake-kernel-slow", "sleep 30\n")

	s := New()
	s.SetBinaryName("halo-fake-kernel-slow")
	events, err := s.Start(domain.ServerProfile{Server: "a:1", Listen: "b:2"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 等子进程真正起来
	deadline := time.Now().Add(5 * time.Second)
	for s.Pid() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Pid() == 0 {
		t.Fatalf("kernel process never started")
	}

	if _, err := s.Start(domain.ServerProfile{}); err != repository.ErrProcessRunning {
		t.Fatalf("second Start: got %v, want ErrProcessRunning", err)
	}

	s.Stop()
	finished := 0
	for ev := range events {
		if ev.Kind == EventFinished {
			finished++
		}
	}
	if finished != 1 {
		t.Fatalf("expected one Finished after Stop, got %d", finished)
	}
	if s.Running() {
		t.Fatalf("still running after Stop")
	}
}

func TestStopForcesKillAfterTimeout(t *testing.T) {
	// 忽略 TERM 的内核：优雅窗口耗尽后必须走强杀路径
	writeFakeKernel(t, "halo-fake-kernel-stubborn",
		"trap '' TERM\necho ready\nwhile :; do sleep 0.2; done\n")

	s := New()
	s.SetBinaryName("halo-fake-kernel-stubborn")
	events, err := s.Start(domain.ServerProfile{Server: "a:1", Listen: "b:2"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 等 trap 安装完成（ready 行晚于 trap 输出）
	ready := false
	timeout := time.After(5 * time.Second)
	for !ready {
		select {
		case ev := <-events:
			if ev.Kind == EventLog && ev.Line == "ready" {
				ready = true
			}
		case <-timeout:
			t.Fatalf("kernel never reported ready")
		}
	}

	begin := time.Now()
	s.Stop()
	finished := 0
	for ev := range events {
		if ev.Kind == EventFinished {
			finished++
		}
	}
	elapsed := time.Since(begin)

	if finished != 1 {
		t.Fatalf("expected exactly one Finished, got %d", finished)
	}
	if elapsed+50*time.Millisecond < stopTimeout {
		t.Fatalf("Stop returned before the graceful window elapsed: %v", elapsed)
	}
	if elapsed > stopTimeout+7*time.Second {
		t.Fatalf("kill path took too long: %v", elapsed)
	}
	if s.Running() {
		t.Fatalf("still running after forced kill")
	}
}

func TestStopIsNoopWhenIdle(t *testing.T) {
	s := New()
	s.Stop()
	if s.Running() {
		t.Fatalf("Stop on idle supervisor changed state")
	}
}

func TestDecodeLine(t *testing.T) {
	t.Run("strips trailing newline", func(t *testing.T) {
		if got := decodeLine("hello\r\n"); got != "hello" {
			t.Fatalf("got %q", got)
		}
	})
	t.Run("replaces invalid utf8", func(t *testing.T) {
		got := decodeLine(string([]byte{'o', 'k', 0xff, 0xfe, '\n'}))
		if !strings.HasPrefix(got, "ok") {
			t.Fatalf("prefix lost: %q", got)
		}
		if !strings.Contains(got, "�") {
			t.Fatalf("invalid bytes not replaced: %q", got)
		}
	})
}
