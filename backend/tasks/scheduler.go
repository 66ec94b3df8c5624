package tasks

import (
	"context"

	"halo/backend/service/geoip"
)

// Scheduler 后台任务调度器
type Scheduler struct {
	geoLoad *GeoLoad
}

// NewScheduler 创建调度器
func NewScheduler(geoSvc *geoip.Service) *Scheduler {
	return &Scheduler{
		geoLoad: &GeoLoad{Service: geoSvc},
	}
}

// Start 启动所有后台任务（随 ctx 取消退出）
func (s *Scheduler) Start(ctx context.Context) {
	go s.geoLoad.Start(ctx)
}
