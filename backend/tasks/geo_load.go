package tasks

import (
	"context"
	"time"

	"halo/backend/service/geoip"
)

// GeoLoad 后台加载离线 geo-IP 区间表。
// 启动时触发一次，之后按间隔重试直到加载成功（列表文件可能后放进来）。
type GeoLoad struct {
	Service *geoip.Service
	Retry   time.Duration
}

func (t *GeoLoad) Start(ctx context.Context) {
	if t.Service == nil {
		return
	}
	retry := t.Retry
	if retry <= 0 {
		retry = 10 * time.Minute
	}

	t.Service.LoadInBackground()

	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.Service.Ready() {
				return
			}
			t.Service.LoadInBackground()
		}
	}
}
