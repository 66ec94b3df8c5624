package persist

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"halo/backend/domain"
	"halo/backend/repository"
	"halo/backend/repository/events"
)

// Snapshotter 配置快照管理器
//
// 订阅事件总线后，任何仓储写操作都会触发一次防抖的持久化；
// 退出路径通过 SaveNow 做同步落盘。
type Snapshotter struct {
	path  string
	store repository.Snapshottable

	mu       sync.Mutex
	pending  bool
	dirty    bool
	debounce time.Duration

	saveMu sync.Mutex
}

// NewSnapshotter 创建快照管理器
func NewSnapshotter(path string, store repository.Snapshottable) *Snapshotter {
	return &Snapshotter{
		path:     path,
		store:    store,
		debounce: 200 * time.Millisecond,
	}
}

// SetDebounce 设置防抖延迟
func (s *Snapshotter) SetDebounce(d time.Duration) {
	s.mu.Lock()
	s.debounce = d
	s.mu.Unlock()
}

// SubscribeEvents 订阅事件总线（所有写操作触发持久化）
func (s *Snapshotter) SubscribeEvents(bus *events.Bus) {
	bus.SubscribeAll(func(event events.Event) {
		s.Schedule()
	})
}

// Schedule 调度快照（防抖）
func (s *Snapshotter) Schedule() {
	s.mu.Lock()
	if s.pending {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.dirty = false
	s.mu.Unlock()

	go func() {
		for {
			s.mu.Lock()
			debounce := s.debounce
			s.mu.Unlock()

			time.Sleep(debounce)
			_ = s.save()

			s.mu.Lock()
			if s.dirty {
				s.dirty = false
				s.mu.Unlock()
				continue
			}
			s.pending = false
			s.mu.Unlock()
			return
		}
	}()
}

// SaveNow 立即保存（同步）
func (s *Snapshotter) SaveNow() error {
	return s.save()
}

func (s *Snapshotter) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.doSave()
}

// doSave 执行保存；写失败只记录日志，状态保留在内存中等待下次重试
func (s *Snapshotter) doSave() error {
	state := s.store.Snapshot()
	state.GeneratedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Printf("[Snapshot] marshal failed: %v", err)
		return err
	}

	if err := s.atomicWrite(data); err != nil {
		log.Printf("[Snapshot] write failed: %v", err)
		return err
	}

	return nil
}

// atomicWrite 原子写入
func (s *Snapshotter) atomicWrite(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load 加载配置文件。
// 文件缺失返回空状态；解析失败记录日志并返回空状态——配置错误从不致命，
// 调用方随后会种入默认配置。
func Load(path string) domain.AppState {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Snapshot] read %s failed: %v", path, err)
		}
		return domain.AppState{}
	}
	if len(data) == 0 {
		return domain.AppState{}
	}

	var state domain.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("[Snapshot] parse %s failed, falling back to empty state: %v", path, err)
		return domain.AppState{}
	}
	return state
}

// Save 保存配置文件（同步、原子）
func Save(path string, state domain.AppState) error {
	state.GeneratedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
