package memory

import (
	"context"

	"halo/backend/domain"
	"halo/backend/repository/events"
)

// StateRepo 上次运行状态仓储实现（单例记录）
type StateRepo struct {
	store *Store
}

// NewStateRepo 创建状态仓储
func NewStateRepo(store *Store) *StateRepo {
	return &StateRepo{store: store}
}

// Get 读取上次运行状态
func (r *StateRepo) Get(ctx context.Context) (domain.LastRunState, error) {
	r.store.RLock()
	defer r.store.RUnlock()
	return r.store.LastState(), nil
}

// Update 原子修改上次运行状态；每次修改都会触发持久化事件
func (r *StateRepo) Update(ctx context.Context, mutate func(domain.LastRunState) domain.LastRunState) (domain.LastRunState, error) {
	r.store.Lock()
	updated := mutate(r.store.LastState())
	r.store.SetLastState(updated)
	r.store.Unlock()

	r.store.PublishEvent(events.LastStateEvent{State: updated})
	return updated, nil
}
