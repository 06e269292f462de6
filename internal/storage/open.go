package storage

import (
	"fmt"
	"path/filepath"

	"github.com/LJTian/TickerNews/internal/config"
)

// OpenBackend 按 CACHE_BACKEND 打开缓存后端
func OpenBackend(cfg config.CacheConfig) (Backend, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryBackend(), nil
	case "redis":
		return OpenRedis(cfg.RedisAddr)
	case "postgres":
		return NewStore(cfg.PostgresDSN)
	case "sqlite", "":
		return OpenSQLite(filepath.Join(cfg.Dir, "cache.db"))
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", config.ErrConfiguration, cfg.Backend)
	}
}
