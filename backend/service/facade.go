package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"halo/backend/domain"
	"halo/backend/persist"
	"halo/backend/repository"
	"halo/backend/service/geoip"
	"halo/backend/service/logbuf"
	"halo/backend/service/profiles"
	"halo/backend/service/supervisor"
)

// 启动恢复的延迟：等其余子系统完成初始化后再拉起内核
const restoreDelay = 150 * time.Millisecond

// Status 会话状态快照（API 层直接序列化）
type Status struct {
	Running            bool   `json:"running"`
	Pid                int    `json:"pid,omitempty"`
	CurrentProfileID   string `json:"current_profile_id,omitempty"`
	SystemProxyEnabled bool   `json:"system_proxy_enabled"`
	AutoStartChecked   bool   `json:"auto_start_checked"`
	GeoReady           bool   `json:"geo_ready"`
}

// KernelSupervisor 进程监督器（supervisor.Supervisor 实现）
type KernelSupervisor interface {
	Start(profile domain.ServerProfile) (<-chan supervisor.Event, error)
	Stop()
	Running() bool
	Pid() int
}

// ProxyController 系统代理控制（sysproxy.Controller 实现）
type ProxyController interface {
	Apply(enabled bool, listen string, mode domain.RoutingMode) (bool, string)
}

// SessionNotifier 桌面通知（notify.Notifier 实现）
type SessionNotifier interface {
	KernelStarted(profileName string)
	KernelStopped(unexpected bool)
}

// Facade 会话协调器（API 聚合层）。
//
// 把用户的启动/停止/切换意图分发给配置、监督器和系统代理三个子系统，
// 并在每次状态变迁后立刻持久化。内核输出由单独的 goroutine 消费，
// 与前台控制路径只通过有序事件流交互。
type Facade struct {
	profiles    *profiles.Service
	states      repository.StateRepository
	sup         KernelSupervisor
	proxy       ProxyController
	geo         *geoip.Service
	notifier    SessionNotifier
	snapshotter *persist.Snapshotter
	logs        *logbuf.Buffer
	autostart   AutostartManager

	mu sync.Mutex
	// 本会话是否真的写入过系统代理（区别于偏好开关）
	proxyApplied bool
	// 本轮停止是否由用户主动发起（决定退出通知的措辞）
	stopRequested bool
	// 程序退出中：收尾时保留 was_running 供下次启动恢复
	shuttingDown bool
}

// NewFacade 创建会话协调器
func NewFacade(
	profileSvc *profiles.Service,
	states repository.StateRepository,
	sup KernelSupervisor,
	proxy ProxyController,
	geo *geoip.Service,
	notifier SessionNotifier,
	snapshotter *persist.Snapshotter,
	autostart AutostartManager,
) *Facade {
	if autostart == nil {
		autostart = LogOnlyAutostart{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Facade{
		profiles:    profileSvc,
		states:      states,
		sup:         sup,
		proxy:       proxy,
		geo:         geo,
		notifier:    notifier,
		snapshotter: snapshotter,
		logs:        logbuf.New(),
		autostart:   autostart,
	}
}

// Profiles 暴露配置服务（API 层使用）
func (f *Facade) Profiles() *profiles.Service { return f.profiles }

type noopNotifier struct{}

func (noopNotifier) KernelStarted(string) {}
func (noopNotifier) KernelStopped(bool)   {}

// ========== 启动 / 停止 ==========

// StartProxy 用当前配置启动内核。
//
// 前置校验 server/listen 非空；启动成功后标记 was_running 并立刻持久化；
// 系统代理偏好打开且分流模式不为 none 时同步写入 OS 代理设置。
func (f *Facade) StartProxy(ctx context.Context) error {
	profile, err := f.profiles.Current(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(profile.Server) == "" || strings.TrimSpace(profile.Listen) == "" {
		return fmt.Errorf("%w: server and listen are required to start", repository.ErrInvalidData)
	}

	events, err := f.sup.Start(profile)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.stopRequested = false
	f.mu.Unlock()

	state, _ := f.states.Update(ctx, func(s domain.LastRunState) domain.LastRunState {
		s.WasRunning = true
		return s
	})
	f.persistNow()

	if state.SystemProxyEnabled && profile.RoutingMode != domain.RoutingNone {
		if ok, diag := f.proxy.Apply(true, profile.Listen, profile.RoutingMode); ok {
			f.mu.Lock()
			f.proxyApplied = true
			f.mu.Unlock()
		} else {
			log.Printf("[Session] system proxy apply failed: %s", diag)
			f.logs.Append("警告: 系统代理设置失败 - " + diag)
		}
	}

	f.notifier.KernelStarted(profile.Name)
	go f.consumeEvents(events, profile)
	return nil
}

// consumeEvents 在后台消费一次内核生命周期的全部事件。
// 日志行进入环形缓冲；Finished 触发统一收尾。
func (f *Facade) consumeEvents(events <-chan supervisor.Event, profile domain.ServerProfile) {
	for ev := range events {
		switch ev.Kind {
		case supervisor.EventLog:
			f.logs.Append(ev.Line)
		case supervisor.EventFinished:
			f.onFinished(profile)
		}
	}
}

// onFinished 内核退出后的收尾：撤销系统代理、清理运行标记、持久化、通知。
// 无论是用户主动停止还是进程意外退出，都走这一条路径。
func (f *Facade) onFinished(profile domain.ServerProfile) {
	ctx := context.Background()

	f.mu.Lock()
	applied := f.proxyApplied
	requested := f.stopRequested
	exiting := f.shuttingDown
	f.proxyApplied = false
	f.stopRequested = false
	f.mu.Unlock()

	if applied {
		if ok, diag := f.proxy.Apply(false, profile.Listen, profile.RoutingMode); !ok {
			log.Printf("[Session] system proxy clear failed: %s", diag)
		}
	}

	// 程序退出中：状态由 Shutdown 统一保存，保留 was_running 供下次恢复
	if exiting {
		log.Printf("[Session] kernel finished during shutdown")
		return
	}

	_, _ = f.states.Update(ctx, func(s domain.LastRunState) domain.LastRunState {
		s.WasRunning = false
		s.SystemProxyEnabled = false
		return s
	})
	f.persistNow()

	log.Printf("[Session] kernel finished (requested=%v)", requested)
	f.notifier.KernelStopped(!requested)
}

// StopProxy 请求停止内核。未运行时是安全的空操作。
// 阻塞直到优雅退出或超时强杀；真正的状态清理在 Finished 事件里完成。
func (f *Facade) StopProxy(ctx context.Context) {
	if !f.sup.Running() {
		return
	}
	f.mu.Lock()
	f.stopRequested = true
	f.mu.Unlock()
	f.sup.Stop()
}

// ========== 配置保存与切换 ==========

// AddProfile 新增配置并立刻落盘；返回时磁盘上的 config.json 已包含新配置
func (f *Facade) AddProfile(ctx context.Context, profile domain.ServerProfile) (domain.ServerProfile, error) {
	created, err := f.profiles.Add(ctx, profile)
	if err != nil {
		return domain.ServerProfile{}, err
	}
	f.persistNow()
	return created, nil
}

// DeleteProfile 删除配置并立刻落盘
func (f *Facade) DeleteProfile(ctx context.Context, id string) error {
	if err := f.profiles.Delete(ctx, id); err != nil {
		return err
	}
	f.persistNow()
	return nil
}

// RenameProfile 重命名配置并立刻落盘
func (f *Facade) RenameProfile(ctx context.Context, id, name string) (domain.ServerProfile, error) {
	renamed, err := f.profiles.Rename(ctx, id, name)
	if err != nil {
		return domain.ServerProfile{}, err
	}
	f.persistNow()
	return renamed, nil
}

// SaveProfile 保存配置。
// 被修改的是运行中的当前配置时，重新评估系统代理（监听地址或分流模式
// 可能已经变化，原始行为：routing 切换立即生效）。
func (f *Facade) SaveProfile(ctx context.Context, id string, profile domain.ServerProfile) (domain.ServerProfile, error) {
	updated, err := f.profiles.Save(ctx, id, profile)
	if err != nil {
		return domain.ServerProfile{}, err
	}
	f.persistNow()

	if f.sup.Running() {
		if current, err := f.profiles.Current(ctx); err == nil && current.ID == id {
			f.reapplyProxy(ctx, updated)
		}
	}
	return updated, nil
}

// reapplyProxy 依据偏好和新的分流模式重算系统代理应有的状态
func (f *Facade) reapplyProxy(ctx context.Context, profile domain.ServerProfile) {
	state, _ := f.states.Get(ctx)
	wantOn := state.SystemProxyEnabled && profile.RoutingMode != domain.RoutingNone

	f.mu.Lock()
	applied := f.proxyApplied
	f.mu.Unlock()

	if wantOn {
		if ok, diag := f.proxy.Apply(true, profile.Listen, profile.RoutingMode); ok {
			f.mu.Lock()
			f.proxyApplied = true
			f.mu.Unlock()
		} else {
			log.Printf("[Session] system proxy re-apply failed: %s", diag)
		}
		return
	}

	if applied {
		// 模式切到 none 后 Apply 按约定不再触碰 OS 设置，
		// 这里用 global 走一次真正的清除
		if ok, diag := f.proxy.Apply(false, profile.Listen, domain.RoutingGlobal); ok {
			f.mu.Lock()
			f.proxyApplied = false
			f.mu.Unlock()
		} else {
			log.Printf("[Session] system proxy clear failed: %s", diag)
		}
	}
}

// SwitchProfile 切换当前配置；内核运行中时拒绝（必须先停止）
func (f *Facade) SwitchProfile(ctx context.Context, id string) error {
	if f.sup.Running() {
		return repository.ErrProcessRunning
	}
	if err := f.profiles.Select(ctx, id); err != nil {
		return err
	}
	f.persistNow()
	return nil
}

// ========== 偏好 ==========

// SetSystemProxyPref 记录系统代理偏好；内核运行中时立刻应用或撤销
func (f *Facade) SetSystemProxyPref(ctx context.Context, enabled bool) error {
	if f.sup.Running() {
		profile, err := f.profiles.Current(ctx)
		if err != nil {
			return err
		}
		ok, diag := f.proxy.Apply(enabled, profile.Listen, profile.RoutingMode)
		if !ok {
			return fmt.Errorf("system proxy: %s", diag)
		}
		f.mu.Lock()
		f.proxyApplied = enabled && profile.RoutingMode != domain.RoutingNone
		f.mu.Unlock()
	}

	_, err := f.states.Update(ctx, func(s domain.LastRunState) domain.LastRunState {
		s.SystemProxyEnabled = enabled
		return s
	})
	f.persistNow()
	return err
}

// SetAutostartPref 记录开机自启偏好并委托给平台注册器
func (f *Facade) SetAutostartPref(ctx context.Context, checked bool) error {
	if err := f.autostart.Set(checked); err != nil {
		return err
	}
	_, err := f.states.Update(ctx, func(s domain.LastRunState) domain.LastRunState {
		s.AutoStartChecked = checked
		return s
	})
	f.persistNow()
	return err
}

// ========== 启动恢复 ==========

// RestoreOnLaunch 依据上次运行状态恢复会话。
// 上次退出时内核在运行，则延迟一小段时间后重新拉起（用当时的当前配置）。
func (f *Facade) RestoreOnLaunch(ctx context.Context) {
	state, err := f.states.Get(ctx)
	if err != nil {
		log.Printf("[Session] restore skipped: %v", err)
		return
	}
	if !state.WasRunning {
		log.Printf("[Session] nothing to restore")
		return
	}

	log.Printf("[Session] restoring previous session in %v", restoreDelay)
	time.AfterFunc(restoreDelay, func() {
		if err := f.StartProxy(context.Background()); err != nil {
			log.Printf("[Session] restore start failed: %v", err)
		}
	})
}

// ========== 查询 ==========

// Status 返回会话状态快照
func (f *Facade) Status(ctx context.Context) Status {
	state, _ := f.states.Get(ctx)

	st := Status{
		Running:            f.sup.Running(),
		Pid:                f.sup.Pid(),
		SystemProxyEnabled: state.SystemProxyEnabled,
		AutoStartChecked:   state.AutoStartChecked,
		GeoReady:           f.geo.Ready(),
	}
	if current, err := f.profiles.Current(ctx); err == nil {
		st.CurrentProfileID = current.ID
	}
	return st
}

// Logs 增量读取内核输出
func (f *Facade) Logs(since uint64) logbuf.Snapshot {
	return f.logs.Since(since)
}

// GeoWildcards 返回 geo-IP 压缩结果（独立组件，暂未并入 OS 例外列表）
func (f *Facade) GeoWildcards() []string {
	return f.geo.Wildcards()
}

// persistNow 立刻落盘；失败只记日志，内存状态保持待重试
func (f *Facade) persistNow() {
	if f.snapshotter == nil {
		return
	}
	if err := f.snapshotter.SaveNow(); err != nil {
		log.Printf("[Session] persist failed: %v", err)
	}
}

// Shutdown 退出前的收尾：停内核、撤销系统代理、保存最终状态。
// was_running 写成退出时刻的真实运行状态，下次启动据此恢复会话。
func (f *Facade) Shutdown(ctx context.Context) {
	running := f.sup.Running()

	f.mu.Lock()
	f.shuttingDown = true
	applied := f.proxyApplied
	f.mu.Unlock()

	f.StopProxy(ctx)

	if applied {
		if profile, err := f.profiles.Current(ctx); err == nil {
			_, _ = f.proxy.Apply(false, profile.Listen, profile.RoutingMode)
		}
	}

	_, _ = f.states.Update(ctx, func(s domain.LastRunState) domain.LastRunState {
		s.WasRunning = running
		return s
	})
	f.persistNow()
}
