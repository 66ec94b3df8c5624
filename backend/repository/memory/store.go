package memory

import (
	"sync"

	"halo/backend/domain"
	"halo/backend/repository/events"
)

// Store 内存存储引擎
//
// profiles 保持插入顺序（与 config.json 中的顺序一致）；
// 名称排序是 List 的展示约定，由仓储层在读取时完成。
type Store struct {
	mu sync.RWMutex

	profiles  []domain.ServerProfile
	currentID string
	lastState domain.LastRunState

	eventBus *events.Bus
}

// NewStore 创建新的内存存储
func NewStore(eventBus *events.Bus) *Store {
	return &Store{eventBus: eventBus}
}

// ========== 锁操作（供仓储使用）==========

// RLock 获取读锁
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock 释放读锁
func (s *Store) RUnlock() { s.mu.RUnlock() }

// Lock 获取写锁
func (s *Store) Lock() { s.mu.Lock() }

// Unlock 释放写锁
func (s *Store) Unlock() { s.mu.Unlock() }

// ========== 事件发布 ==========

// PublishEvent 发布事件（异步，应在锁外调用）
func (s *Store) PublishEvent(event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(event)
	}
}

// ========== 数据访问（供仓储内部使用，需持有锁）==========

// Profiles 返回配置切片
func (s *Store) Profiles() []domain.ServerProfile { return s.profiles }

// SetProfiles 替换配置切片
func (s *Store) SetProfiles(profiles []domain.ServerProfile) { s.profiles = profiles }

// CurrentID 返回当前配置 ID
func (s *Store) CurrentID() string { return s.currentID }

// SetCurrentID 设置当前配置 ID
func (s *Store) SetCurrentID(id string) { s.currentID = id }

// LastState 返回上次运行状态
func (s *Store) LastState() domain.LastRunState { return s.lastState }

// SetLastState 设置上次运行状态
func (s *Store) SetLastState(state domain.LastRunState) { s.lastState = state }

// ========== 快照与恢复 ==========

// Snapshot 生成状态快照
func (s *Store) Snapshot() domain.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make([]domain.ServerProfile, len(s.profiles))
	copy(servers, s.profiles)

	return domain.AppState{
		Servers:         servers,
		CurrentServerID: s.currentID,
		LastState:       s.lastState,
	}
}

// LoadState 从快照恢复状态
func (s *Store) LoadState(state domain.AppState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles = make([]domain.ServerProfile, 0, len(state.Servers))
	for _, p := range state.Servers {
		if p.ID == "" {
			continue
		}
		s.profiles = append(s.profiles, p.Normalize())
	}

	s.currentID = state.CurrentServerID
	// 指针失效时指向第一个配置
	if s.indexOfLocked(s.currentID) < 0 {
		s.currentID = ""
		if len(s.profiles) > 0 {
			s.currentID = s.profiles[0].ID
		}
	}

	s.lastState = state.LastState
}

// indexOfLocked 返回配置在切片中的下标，不存在时返回 -1（需持有锁）
func (s *Store) indexOfLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, p := range s.profiles {
		if p.ID == id {
			return i
		}
	}
	return -1
}
