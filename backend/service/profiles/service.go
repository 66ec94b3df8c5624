package profiles

import (
	"context"
	"fmt"
	"log"
	"strings"

	"halo/backend/domain"
	"halo/backend/repository"
)

// Service 服务器配置管理。
// 在仓储之上补充业务规则：名称唯一、默认配置种子。
type Service struct {
	repo repository.ProfileRepository
}

func NewService(repo repository.ProfileRepository) *Service {
	return &Service{repo: repo}
}

// List 按名称排序列出所有配置
func (s *Service) List(ctx context.Context) ([]domain.ServerProfile, error) {
	return s.repo.List(ctx)
}

// Get 获取配置
func (s *Service) Get(ctx context.Context, id string) (domain.ServerProfile, error) {
	return s.repo.Get(ctx, id)
}

// Current 返回当前配置
func (s *Service) Current(ctx context.Context) (domain.ServerProfile, error) {
	return s.repo.Current(ctx)
}

// Count 返回配置数量
func (s *Service) Count(ctx context.Context) int {
	return s.repo.Count(ctx)
}

// Add 新增配置并设为当前配置；名称必须全局唯一
func (s *Service) Add(ctx context.Context, profile domain.ServerProfile) (domain.ServerProfile, error) {
	profile = profile.Normalize()
	if err := s.checkNameFree(ctx, profile.Name, ""); err != nil {
		return domain.ServerProfile{}, err
	}
	return s.repo.Create(ctx, profile)
}

// Save 覆盖保存配置；改名时同样检查唯一性
func (s *Service) Save(ctx context.Context, id string, profile domain.ServerProfile) (domain.ServerProfile, error) {
	profile = profile.Normalize()
	if err := s.checkNameFree(ctx, profile.Name, id); err != nil {
		return domain.ServerProfile{}, err
	}
	return s.repo.Update(ctx, id, profile)
}

// Rename 仅修改配置名称
func (s *Service) Rename(ctx context.Context, id, newName string) (domain.ServerProfile, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return domain.ServerProfile{}, fmt.Errorf("%w: profile name is required", repository.ErrInvalidData)
	}

	profile, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.ServerProfile{}, err
	}
	if profile.Name == newName {
		return profile, nil
	}
	if err := s.checkNameFree(ctx, newName, id); err != nil {
		return domain.ServerProfile{}, err
	}

	profile.Name = newName
	return s.repo.Update(ctx, id, profile)
}

// Delete 删除配置；最后一个配置不可删除
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Select 把当前配置指针移动到指定配置
func (s *Service) Select(ctx context.Context, id string) error {
	return s.repo.SetCurrent(ctx, id)
}

// EnsureDefault 仓储为空时种入一个默认配置（首次运行/配置文件损坏后）
func (s *Service) EnsureDefault(ctx context.Context) error {
	if s.repo.Count(ctx) > 0 {
		return nil
	}
	created, err := s.repo.Create(ctx, domain.DefaultProfile())
	if err != nil {
		return err
	}
	log.Printf("[Profiles] seeded default profile: %s", created.ID)
	return nil
}

// checkNameFree 名称唯一性检查；excludeID 用于排除被改名的配置自身
func (s *Service) checkNameFree(ctx context.Context, name, excludeID string) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range list {
		if p.ID != excludeID && p.Name == name {
			return fmt.Errorf("%w: %s", repository.ErrNameConflict, name)
		}
	}
	return nil
}
