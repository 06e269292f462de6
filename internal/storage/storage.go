package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LJTian/TickerNews/internal/logger"
)

// CacheEntry Postgres 中的缓存表
type CacheEntry struct {
	Key        string         `gorm:"primaryKey;size:64" json:"key"`
	Kind       string         `gorm:"size:32;index" json:"kind"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	StoredAt   time.Time      `gorm:"index" json:"storedAt"`
	TTLSeconds int64          `json:"ttlSeconds"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Store Postgres 存储：缓存条目 + 自选代码
type Store struct {
	DB *gorm.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewStoreWithDB(db)
}

// NewStoreWithDB 复用已打开的连接并迁移表结构
func NewStoreWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&CacheEntry{}, &WatchedTicker{}); err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if n, err := s.Purge(context.Background(), time.Now()); err != nil {
		logger.Log.Warnf("purge expired postgres cache entries: %v", err)
	} else if n > 0 {
		logger.Log.Debugf("purged %d expired postgres cache entries", n)
	}
	return s, nil
}

func (s *Store) Load(ctx context.Context, key string) (*Entry, error) {
	var row CacheEntry
	// 未命中是常态，不打 record not found 日志
	silent := s.DB.Session(&gorm.Session{Logger: s.DB.Logger.LogMode(gormlogger.Silent)})
	err := silent.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("postgres load: %w", err)
	}
	return &Entry{
		Key:       row.Key,
		Kind:      row.Kind,
		Payload:   []byte(row.Payload),
		CreatedAt: row.StoredAt,
		TTL:       time.Duration(row.TTLSeconds) * time.Second,
	}, nil
}

// Save 以 key 为幂等键 upsert，并发写入时后写覆盖
func (s *Store) Save(ctx context.Context, e *Entry) error {
	row := CacheEntry{
		Key:        e.Key,
		Kind:       e.Kind,
		Payload:    datatypes.JSON(e.Payload),
		StoredAt:   e.CreatedAt,
		TTLSeconds: int64(e.TTL / time.Second),
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "payload", "stored_at", "ttl_seconds", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("postgres save: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.DB.WithContext(ctx).Where("key = ?", key).Delete(&CacheEntry{}).Error
}

// Purge 清理已过期的缓存条目
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("stored_at + ttl_seconds * interval '1 second' <= ?", now).
		Delete(&CacheEntry{})
	return res.RowsAffected, res.Error
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
