package supervisor

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"halo/backend/domain"
	"halo/backend/repository"
)

// 优雅退出等待时长，超时后强制 kill
const stopTimeout = 3 * time.Second

// EventKind 事件类型
type EventKind int

const (
	// EventLog 一行内核输出（含本服务自身的诊断行）
	EventLog EventKind = iota
	// EventFinished 终止事件：每个 start/stop 周期恰好一次，且在所有日志行之后
	EventFinished
)

// Event 进程生命周期事件，按产生顺序投递
type Event struct {
	Kind EventKind
	Line string
}

// Supervisor 内核进程监督器。
//
// 同一实例同一时刻最多监督一个子进程。子进程输出在独立 goroutine 中逐行读取，
// 通过有序事件通道交给调用方消费；调用方从不直接持有进程句柄。
type Supervisor struct {
	mu      sync.Mutex
	proc    *os.Process
	done    chan struct{}
	running bool

	// 可执行文件名，默认 ech-workers；测试中可替换
	binaryName string
}

// New 创建进程监督器
func New() *Supervisor {
	return &Supervisor{binaryName: "ech-workers"}
}

// SetBinaryName 覆盖内核可执行文件名（测试用）
func (s *Supervisor) SetBinaryName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binaryName = name
}

// Running 是否有子进程存活
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pid 返回子进程 PID，未运行时返回 0
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid
}

// Start 启动内核进程。
//
// 返回的事件通道按序投递日志行，并以恰好一次的 EventFinished 结束后关闭；
// 可执行文件缺失、spawn 失败等错误不通过返回值暴露，而是作为诊断日志行 +
// Finished 事件投递——调用方只有一条消费路径。
// 仅当已有子进程在运行时返回错误。
func (s *Supervisor) Start(profile domain.ServerProfile) (<-chan Event, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, repository.ErrProcessRunning
	}
	s.running = true
	s.done = make(chan struct{})
	binaryName := s.binaryName
	s.mu.Unlock()

	events := make(chan Event, 512)
	go s.run(profile, binaryName, events)
	return events, nil
}

// run 在独立 goroutine 中执行完整生命周期：查找、启动、读输出、收尾。
// 无论哪条路径退出，都恰好投递一次 Finished 并关闭通道。
func (s *Supervisor) run(profile domain.ServerProfile, binaryName string, events chan Event) {
	finish := func() {
		s.mu.Lock()
		s.proc = nil
		s.running = false
		done := s.done
		s.done = nil
		s.mu.Unlock()
		if done != nil {
			close(done)
		}
		events <- Event{Kind: EventFinished}
		close(events)
	}

	exePath, searched := FindExecutable(binaryName)
	if exePath == "" {
		events <- Event{Kind: EventLog, Line: fmt.Sprintf("错误: 找不到 %s 可执行文件!", binaryName)}
		events <- Event{Kind: EventLog, Line: "请确保可执行文件在以下位置之一:"}
		for _, loc := range searched {
			events <- Event{Kind: EventLog, Line: "  - " + loc}
		}
		events <- Event{Kind: EventLog, Line: "  - 或者在系统 PATH 中"}
		finish()
		return
	}

	args := BuildArgs(profile)
	cmd := newCommand(exePath, args...)

	// stdout/stderr 合并进同一个管道，保证行序与内核产生顺序一致
	pr, pw, err := os.Pipe()
	if err != nil {
		events <- Event{Kind: EventLog, Line: fmt.Sprintf("错误: 启动失败 - %v", err)}
		finish()
		return
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		events <- Event{Kind: EventLog, Line: fmt.Sprintf("错误: 启动失败 - %v", err)}
		finish()
		return
	}
	// 写端交给子进程后关闭本端副本，否则读循环永远等不到 EOF
	_ = pw.Close()

	s.mu.Lock()
	s.proc = cmd.Process
	s.mu.Unlock()

	log.Printf("[Supervisor] kernel started: pid=%d %s %s", cmd.Process.Pid, exePath, strings.Join(args, " "))

	reader := bufio.NewReader(pr)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			events <- Event{Kind: EventLog, Line: decodeLine(line)}
		}
		if err != nil {
			break
		}
	}
	_ = pr.Close()

	err = cmd.Wait()
	if err != nil {
		log.Printf("[Supervisor] kernel exited: %v", err)
	} else {
		log.Printf("[Supervisor] kernel exited")
	}
	finish()
}

// Stop 请求优雅终止并最多等待 stopTimeout，超时后强制 kill。
// 未运行时是安全的空操作；真正的收尾（Finished 事件）仍由读循环完成。
func (s *Supervisor) Stop() {
	s.mu.Lock()
	proc := s.proc
	done := s.done
	s.mu.Unlock()

	if proc == nil || done == nil {
		return
	}

	if err := terminate(proc); err != nil {
		log.Printf("[Supervisor] terminate failed: %v", err)
	}

	select {
	case <-done:
		return
	case <-time.After(stopTimeout):
	}

	log.Printf("[Supervisor] kernel did not exit within %v, killing", stopTimeout)
	_ = proc.Kill()
}

// decodeLine 清洗一行内核输出：
// 去掉行尾换行，把非法 UTF-8 字节替换为 U+FFFD——内核输出永远不会让读循环失败。
func decodeLine(raw string) string {
	raw = strings.TrimRight(raw, "\r\n")
	if utf8.ValidString(raw) {
		return raw
	}
	return strings.ToValidUTF8(raw, string(utf8.RuneError))
}
