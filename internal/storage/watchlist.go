package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LJTian/TickerNews/internal/ticker"
)

// ErrInvalidTicker 代码格式不合法
var ErrInvalidTicker = ticker.ErrInvalid

// Watchlist 定时预热的代码列表
type Watchlist interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, symbol string) (string, error)
	Remove(ctx context.Context, symbol string) (string, error)
}

// WatchedTicker 通过 API 添加的自选代码
type WatchedTicker struct {
	Symbol    string    `gorm:"primaryKey;size:16" json:"symbol"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeSymbol 规范化并校验，非法返回 ErrInvalidTicker
func NormalizeSymbol(symbol string) (string, error) {
	s := ticker.Normalize(symbol)
	if !ticker.Valid(s) {
		return "", ErrInvalidTicker
	}
	return s, nil
}

// List 返回所有自选代码（按添加顺序）
func (s *Store) List(ctx context.Context) ([]string, error) {
	var list []WatchedTicker
	if err := s.DB.WithContext(ctx).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.Symbol)
	}
	return out, nil
}

// Add 添加自选代码（已存在则忽略）
func (s *Store) Add(ctx context.Context, symbol string) (string, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	r := WatchedTicker{Symbol: sym, CreatedAt: time.Now()}
	return sym, s.DB.WithContext(ctx).Where("symbol = ?", sym).FirstOrCreate(&r).Error
}

// Remove 移除自选代码
func (s *Store) Remove(ctx context.Context, symbol string) (string, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	return sym, s.DB.WithContext(ctx).Where("symbol = ?", sym).Delete(&WatchedTicker{}).Error
}

// MemoryWatchlist 没有 Postgres 时使用，初始值来自 WATCHLIST 配置
type MemoryWatchlist struct {
	mu      sync.Mutex
	symbols map[string]int
	seq     int
}

func NewMemoryWatchlist(initial []string) *MemoryWatchlist {
	w := &MemoryWatchlist{symbols: make(map[string]int)}
	for _, s := range initial {
		_, _ = w.Add(context.Background(), s)
	}
	return w
}

func (w *MemoryWatchlist) List(_ context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.symbols))
	for s := range w.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return w.symbols[out[i]] < w.symbols[out[j]] })
	return out, nil
}

func (w *MemoryWatchlist) Add(_ context.Context, symbol string) (string, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.symbols[sym]; !ok {
		w.seq++
		w.symbols[sym] = w.seq
	}
	return sym, nil
}

func (w *MemoryWatchlist) Remove(_ context.Context, symbol string) (string, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	delete(w.symbols, sym)
	w.mu.Unlock()
	return sym, nil
}
