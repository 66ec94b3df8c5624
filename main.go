package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"halo/backend/api"
	"halo/backend/notify"
	"halo/backend/persist"
	"halo/backend/repository/events"
	"halo/backend/repository/memory"
	"halo/backend/service"
	"halo/backend/service/geoip"
	"halo/backend/service/profiles"
	"halo/backend/service/shared"
	"halo/backend/service/supervisor"
	"halo/backend/service/sysproxy"
	"halo/backend/tasks"

	"github.com/gin-gonic/gin"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "127.0.0.1:19081", "HTTP listen address")
	configDir := flag.String("config", shared.ConfigDir(), "config directory (profiles, state, geo-IP cache)")
	dev := flag.Bool("dev", false, "enable development mode with verbose logging")
	autostart := flag.Bool("autostart", false, "launched by the OS autostart mechanism; restore the previous session")
	flag.Parse()

	// 配置日志级别
	if *dev {
		gin.SetMode(gin.DebugMode)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("运行在开发模式 - 显示所有日志")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.SetFlags(log.LstdFlags)
	}

	closeAppLog := setupAppLogging(*configDir)
	if closeAppLog != nil {
		defer closeAppLog()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. 事件总线与内存存储
	eventBus := events.NewBus()
	memStore := memory.NewStore(eventBus)

	// 2. 加载配置（缺失/损坏都回退到空状态，随后种入默认配置）
	configPath := filepath.Join(*configDir, shared.ConfigFileName)
	state := persist.Load(configPath)
	memStore.LoadState(state)
	log.Printf("config loaded from %s: %d profiles", configPath, len(state.Servers))

	// 3. 仓储层
	profileRepo := memory.NewProfileRepo(memStore)
	stateRepo := memory.NewStateRepo(memStore)

	// 4. 服务层
	profileSvc := profiles.NewService(profileRepo)
	sup := supervisor.New()
	proxyCtl := sysproxy.New()
	geoSvc := geoip.NewService(*configDir)
	notifier := notify.New(true)

	// 5. 持久化（事件驱动 + 状态变迁处的同步落盘）
	snapshotter := persist.NewSnapshotter(configPath, memStore)
	snapshotter.SubscribeEvents(eventBus)

	// 6. 确保至少存在一个配置
	if err := profileSvc.EnsureDefault(context.Background()); err != nil {
		log.Printf("ensure default profile failed: %v", err)
	}

	// 7. 会话协调器
	facade := service.NewFacade(profileSvc, stateRepo, sup, proxyCtl, geoSvc, notifier, snapshotter, nil)

	// 8. 后台任务（geo-IP 区间表加载）
	tasks.NewScheduler(geoSvc).Start(ctx)

	// 9. 由 OS 自启动拉起时恢复上一次会话
	if *autostart {
		facade.RestoreOnLaunch(ctx)
	}

	router := api.NewRouter(facade)
	srv := &http.Server{
		Addr:    *addr,
		Handler: router,
	}

	cleanupDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Println("收到退出信号，正在清理...")

		// 停内核、撤系统代理、保存最终状态
		facade.Shutdown(context.Background())

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
		close(cleanupDone)
	}()

	log.Printf("server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("listen: %v", err)
		cancel()
		<-cleanupDone
		return 1
	}
	<-cleanupDone
	return 0
}

// setupAppLogging 把日志同时写到 stderr 和配置目录下的 app.log
func setupAppLogging(configDir string) func() {
	path := filepath.Join(configDir, "app.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("[AppLog] create log dir failed: %v", err)
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		log.Printf("[AppLog] open log file failed (%s): %v", path, err)
		return nil
	}

	_, _ = fmt.Fprintf(f, "----- app start %s pid=%d -----\n", time.Now().Format(time.RFC3339Nano), os.Getpid())
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.Printf("[AppLog] writing to %s", path)
	return func() { _ = f.Close() }
}
