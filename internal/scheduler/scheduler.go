package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/logger"
	"github.com/LJTian/TickerNews/internal/pipeline"
	"github.com/LJTian/TickerNews/internal/storage"
	"github.com/LJTian/TickerNews/internal/summarizer"
)

// Warmer 预热用到的管道操作，由 *pipeline.Service 实现
type Warmer interface {
	Curated(ctx context.Context, q pipeline.Query) (*pipeline.CuratedResult, error)
	Summarize(ctx context.Context, q pipeline.Query) (*summarizer.Summary, *pipeline.CuratedResult, error)
}

// Options 预热参数
type Options struct {
	Timeframes []collector.Timeframe
	Limit      int
	// Summarize 为 true 时同时预热摘要缓存
	Summarize bool
	// TickerTimeout 单个代码一次预热的上限
	TickerTimeout time.Duration
}

// Scheduler 按 cron 定时为自选代码预热缓存。代码逐个处理，不并发
type Scheduler struct {
	cron      *cron.Cron
	watchlist storage.Watchlist
	warmer    Warmer
	opts      Options

	// 上一轮未结束时跳过本轮
	running sync.Mutex
}

func New(spec string, watchlist storage.Watchlist, warmer Warmer, opts Options) (*Scheduler, error) {
	c := cron.New()

	if len(opts.Timeframes) == 0 {
		opts.Timeframes = []collector.Timeframe{collector.Timeframe24h, collector.Timeframe7d}
	}
	if opts.TickerTimeout <= 0 {
		opts.TickerTimeout = 3 * time.Minute
	}
	s := &Scheduler{
		cron:      c,
		watchlist: watchlist,
		warmer:    warmer,
		opts:      opts,
	}

	if _, err := c.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟首轮预热，避免与服务启动后的首批请求争抢数据源
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		s.RunOnce(context.Background())
	})
}

// Stop 等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口，返回成功预热的代码数
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if !s.running.TryLock() {
		logger.Log.Warn("previous warm-up still running, skip")
		return 0
	}
	defer s.running.Unlock()

	symbols, err := s.watchlist.List(ctx)
	if err != nil {
		logger.Log.Errorf("list watchlist: %v", err)
		return 0
	}
	if len(symbols) == 0 {
		logger.Log.Info("watchlist is empty, nothing to warm")
		return 0
	}

	logger.Log.Infof("start warm-up job for %d tickers...", len(symbols))
	ok := 0
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		if s.warm(ctx, sym) {
			ok++
		}
	}
	logger.Log.Infof("warm-up job done, %d/%d tickers refreshed", ok, len(symbols))
	return ok
}

func (s *Scheduler) warm(ctx context.Context, symbol string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opts.TickerTimeout)
	defer cancel()

	okAll := true
	for _, tf := range s.opts.Timeframes {
		q := pipeline.Query{Ticker: symbol, Timeframe: tf, Limit: s.opts.Limit}

		var err error
		if s.opts.Summarize {
			_, _, err = s.warmer.Summarize(ctx, q)
		} else {
			_, err = s.warmer.Curated(ctx, q)
		}
		switch {
		case err == nil:
			logger.Log.Debugf("warmed %s (%s)", symbol, tf)
		case errors.Is(err, pipeline.ErrNoArticlesFound):
			logger.Log.Infof("%s (%s): no articles", symbol, tf)
			okAll = false
		default:
			logger.Log.Warnf("warm %s (%s) failed: %v", symbol, tf, err)
			okAll = false
		}
	}
	return okAll
}
