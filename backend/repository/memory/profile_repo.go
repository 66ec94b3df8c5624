package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"halo/backend/domain"
	"halo/backend/repository"
	"halo/backend/repository/events"

	"github.com/google/uuid"
)

// ProfileRepo 服务器配置仓储实现
type ProfileRepo struct {
	store *Store
}

// NewProfileRepo 创建配置仓储
func NewProfileRepo(store *Store) *ProfileRepo {
	return &ProfileRepo{store: store}
}

// Get 获取配置
func (r *ProfileRepo) Get(ctx context.Context, id string) (domain.ServerProfile, error) {
	r.store.RLock()
	defer r.store.RUnlock()

	if idx := r.store.indexOfLocked(id); idx >= 0 {
		return r.store.Profiles()[idx], nil
	}
	return domain.ServerProfile{}, fmt.Errorf("%w: %s", repository.ErrProfileNotFound, id)
}

// List 列出所有配置（按名称排序）
func (r *ProfileRepo) List(ctx context.Context) ([]domain.ServerProfile, error) {
	r.store.RLock()
	profiles := make([]domain.ServerProfile, len(r.store.Profiles()))
	copy(profiles, r.store.Profiles())
	r.store.RUnlock()

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

// Create 新增配置：分配 ID（若缺失）、追加并设为当前配置。
// 持久化由调用方（事件订阅者）完成。
func (r *ProfileRepo) Create(ctx context.Context, profile domain.ServerProfile) (domain.ServerProfile, error) {
	profile = profile.Normalize()
	if strings.TrimSpace(profile.Name) == "" {
		return domain.ServerProfile{}, fmt.Errorf("%w: profile name is required", repository.ErrInvalidData)
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}

	r.store.Lock()
	if r.store.indexOfLocked(profile.ID) >= 0 {
		r.store.Unlock()
		return domain.ServerProfile{}, fmt.Errorf("%w: duplicate profile id %s", repository.ErrInvalidData, profile.ID)
	}
	r.store.SetProfiles(append(r.store.Profiles(), profile))
	r.store.SetCurrentID(profile.ID)
	r.store.Unlock()

	r.store.PublishEvent(events.ProfileEvent{
		EventType: events.EventProfileCreated,
		ProfileID: profile.ID,
		Profile:   profile,
	})
	return profile, nil
}

// Update 替换同 ID 的配置；ID 不存在时返回 ErrProfileNotFound
func (r *ProfileRepo) Update(ctx context.Context, id string, profile domain.ServerProfile) (domain.ServerProfile, error) {
	profile = profile.Normalize()
	profile.ID = id

	r.store.Lock()
	idx := r.store.indexOfLocked(id)
	if idx < 0 {
		r.store.Unlock()
		return domain.ServerProfile{}, fmt.Errorf("%w: %s", repository.ErrProfileNotFound, id)
	}
	r.store.Profiles()[idx] = profile
	r.store.Unlock()

	r.store.PublishEvent(events.ProfileEvent{
		EventType: events.EventProfileUpdated,
		ProfileID: id,
		Profile:   profile,
	})
	return profile, nil
}

// Delete 删除配置。
// 仅剩一个配置时拒绝删除；被删配置是当前配置时，指针移动到剩余的第一个配置。
func (r *ProfileRepo) Delete(ctx context.Context, id string) error {
	r.store.Lock()
	idx := r.store.indexOfLocked(id)
	if idx < 0 {
		r.store.Unlock()
		return fmt.Errorf("%w: %s", repository.ErrProfileNotFound, id)
	}
	if len(r.store.Profiles()) <= 1 {
		r.store.Unlock()
		return repository.ErrLastProfile
	}

	removed := r.store.Profiles()[idx]
	profiles := append(r.store.Profiles()[:idx:idx], r.store.Profiles()[idx+1:]...)
	r.store.SetProfiles(profiles)

	currentMoved := false
	if r.store.CurrentID() == id {
		r.store.SetCurrentID("")
		if len(profiles) > 0 {
			r.store.SetCurrentID(profiles[0].ID)
		}
		currentMoved = true
	}
	newCurrent := r.store.CurrentID()
	r.store.Unlock()

	r.store.PublishEvent(events.ProfileEvent{
		EventType: events.EventProfileDeleted,
		ProfileID: id,
		Profile:   removed,
	})
	if currentMoved {
		r.store.PublishEvent(events.CurrentEvent{ProfileID: newCurrent})
	}
	return nil
}

// Current 返回当前配置；指针失效时退回第一个配置，仓储为空时返回 ErrProfileNotFound
func (r *ProfileRepo) Current(ctx context.Context) (domain.ServerProfile, error) {
	r.store.RLock()
	defer r.store.RUnlock()

	if idx := r.store.indexOfLocked(r.store.CurrentID()); idx >= 0 {
		return r.store.Profiles()[idx], nil
	}
	if len(r.store.Profiles()) > 0 {
		return r.store.Profiles()[0], nil
	}
	return domain.ServerProfile{}, repository.ErrProfileNotFound
}

// SetCurrent 移动当前配置指针
func (r *ProfileRepo) SetCurrent(ctx context.Context, id string) error {
	r.store.Lock()
	if r.store.indexOfLocked(id) < 0 {
		r.store.Unlock()
		return fmt.Errorf("%w: %s", repository.ErrProfileNotFound, id)
	}
	changed := r.store.CurrentID() != id
	r.store.SetCurrentID(id)
	r.store.Unlock()

	if changed {
		r.store.PublishEvent(events.CurrentEvent{ProfileID: id})
	}
	return nil
}

// Count 返回配置数量
func (r *ProfileRepo) Count(ctx context.Context) int {
	r.store.RLock()
	defer r.store.RUnlock()
	return len(r.store.Profiles())
}
