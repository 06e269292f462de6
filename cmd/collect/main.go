package main

import (
	"context"
	"os"

	"github.com/LJTian/TickerNews/internal/config"
	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/pipeline"
	"github.com/LJTian/TickerNews/internal/scheduler"
	"github.com/LJTian/TickerNews/internal/storage"
)

// 只执行一轮预热后退出：为 WATCHLIST 中的代码刷新精选列表缓存，适合由外部 cron 调用
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("load config failed: %v", err)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		logger.Log.Warnf("init log file failed: %v", err)
	}
	// 设置了 LLM_PROVIDER 才同时预热摘要
	summarize := os.Getenv("LLM_PROVIDER") != ""
	if err := cfg.Validate(summarize); err != nil {
		logger.Log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()
	svc, err := pipeline.FromConfig(ctx, cfg, true, summarize)
	if err != nil {
		logger.Log.Fatalf("init pipeline failed: %v", err)
	}
	s, err := scheduler.New(cfg.CronSpec, storage.NewMemoryWatchlist(cfg.Watchlist), svc, scheduler.Options{
		Limit:     pipeline.DefaultLimit,
		Summarize: summarize,
	})
	if err != nil {
		logger.Log.Fatalf("init scheduler failed: %v", err)
	}

	n := s.RunOnce(ctx)
	if err := svc.Close(); err != nil {
		logger.Log.Warnf("close cache: %v", err)
	}
	if n == 0 && len(cfg.Watchlist) > 0 {
		os.Exit(1)
	}
}
