package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LJTian/TickerNews/internal/logger"
)

// SQLiteBackend 本地文件缓存，默认后端。多个进程写同一个键时后写覆盖
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）dbPath，并清理已过期的条目
func OpenSQLite(dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	if n, err := b.Purge(context.Background(), time.Now()); err != nil {
		logger.Log.Warnf("purge expired cache entries: %v", err)
	} else if n > 0 {
		logger.Log.Debugf("purged %d expired cache entries", n)
	}
	return b, nil
}

func (b *SQLiteBackend) init() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			payload    BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			ttl        INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Load(ctx context.Context, key string) (*Entry, error) {
	var (
		e       Entry
		created int64
		ttl     int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT key, kind, payload, created_at, ttl FROM cache_entries WHERE key = ?`, key,
	).Scan(&e.Key, &e.Kind, &e.Payload, &created, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	e.CreatedAt = time.Unix(0, created)
	e.TTL = time.Duration(ttl)
	return &e, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, e *Entry) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, kind, payload, created_at, ttl)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			payload = excluded.payload,
			created_at = excluded.created_at,
			ttl = excluded.ttl`,
		e.Key, e.Kind, []byte(e.Payload), e.CreatedAt.UnixNano(), int64(e.TTL),
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", e.Key, err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Purge 删除 now 时刻已过期的条目，返回删除条数
func (b *SQLiteBackend) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE created_at + ttl <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
