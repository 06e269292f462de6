package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/TickerNews/internal/api"
	"github.com/LJTian/TickerNews/internal/config"
	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/pipeline"
	"github.com/LJTian/TickerNews/internal/scheduler"
	"github.com/LJTian/TickerNews/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("load config failed: %v", err)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		logger.Log.Warnf("init log file failed: %v", err)
	}
	// API 同时提供列表与摘要，启动时校验 LLM 配置
	if err := cfg.Validate(true); err != nil {
		logger.Log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := pipeline.FromConfig(ctx, cfg, false, true)
	if err != nil {
		logger.Log.Fatalf("init pipeline failed: %v", err)
	}
	defer svc.Close()

	// 定时预热跳过缓存读取，否则 TTL 与调度周期相同时预热永远命中旧条目
	warmer, err := pipeline.FromConfig(ctx, cfg, true, false)
	if err != nil {
		logger.Log.Fatalf("init warm-up pipeline failed: %v", err)
	}
	defer warmer.Close()

	watchlist := openWatchlist(ctx, cfg)

	s, err := scheduler.New(cfg.CronSpec, watchlist, warmer, scheduler.Options{Limit: pipeline.DefaultLimit})
	if err != nil {
		logger.Log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	r := gin.Default()
	// 配置了访问密码时启用 Basic Auth（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}
	api.NewServer(svc, watchlist).RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	logger.Log.Infof("starting api server at %s ...", addr)
	go func() {
		if err := r.Run(addr); err != nil {
			logger.Log.Errorf("server exit: %v", err)
			stop()
		}
	}()
	<-ctx.Done()
	logger.Log.Info("shutting down")
}

// openWatchlist 有 POSTGRES_DSN 时持久化到 Postgres，否则使用内存列表；WATCHLIST 配置作为初始值
func openWatchlist(ctx context.Context, cfg *config.Config) storage.Watchlist {
	if cfg.Cache.PostgresDSN == "" {
		return storage.NewMemoryWatchlist(cfg.Watchlist)
	}

	store, err := storage.NewStore(cfg.Cache.PostgresDSN)
	if err != nil {
		logger.Log.Warnf("open postgres watchlist failed, using memory: %v", err)
		return storage.NewMemoryWatchlist(cfg.Watchlist)
	}
	for _, sym := range cfg.Watchlist {
		if _, err := store.Add(ctx, sym); err != nil {
			logger.Log.Warnf("seed watchlist %q: %v", sym, err)
		}
	}
	return store
}
