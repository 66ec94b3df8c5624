package repository

import (
	"context"

	"halo/backend/domain"
)

// ProfileRepository 服务器配置仓储接口
type ProfileRepository interface {
	// 基础 CRUD
	Get(ctx context.Context, id string) (domain.ServerProfile, error)
	// List 返回按名称排序的配置列表
	List(ctx context.Context) ([]domain.ServerProfile, error)
	// Create 分配 ID（若缺失）、追加并将其设为当前配置
	Create(ctx context.Context, profile domain.ServerProfile) (domain.ServerProfile, error)
	Update(ctx context.Context, id string, profile domain.ServerProfile) (domain.ServerProfile, error)
	// Delete 删除配置；仅剩一个配置时返回 ErrLastProfile，不做任何修改
	Delete(ctx context.Context, id string) error

	// 当前配置指针
	Current(ctx context.Context) (domain.ServerProfile, error)
	SetCurrent(ctx context.Context, id string) error
	Count(ctx context.Context) int
}

// StateRepository 上次运行状态仓储接口（单例记录）
type StateRepository interface {
	Get(ctx context.Context) (domain.LastRunState, error)
	Update(ctx context.Context, mutate func(domain.LastRunState) domain.LastRunState) (domain.LastRunState, error)
}

// Snapshottable 可快照存储
type Snapshottable interface {
	Snapshot() domain.AppState
	LoadState(state domain.AppState)
}
