package persona

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/comigor/gustavo-go/internal/config"
	"github.com/comigor/gustavo-go/internal/logger"
)

// RedisClient is the subset of *redis.Client used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps overrides as plain string keys under a prefix.
type RedisStore struct {
	redisClient RedisClient
	prefix      string
}

// NewRedisStore connects to url (redis://host:port/db).
func NewRedisStore(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(c RedisClient, prefix string) *RedisStore {
	return &RedisStore{redisClient: c, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.redisClient.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s from redis: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.redisClient.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in redis: %w", key, err)
	}
	return nil
}

// SQLiteStore uses the settings table of the transcript database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db, which must already carry the settings table.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Open picks the backend named by cfg.Backend. db may be nil when the transcript store is
// memory-only; any backend that cannot be set up degrades to a MemoryStore.
func Open(cfg config.PersonaConfig, db *sql.DB) Store {
	switch cfg.Backend {
	case "redis":
		s, err := NewRedisStore(cfg.RedisURL, cfg.KeyPrefix)
		if err == nil {
			return s
		}
		logger.L.Warn("redis persona store unavailable, using memory", "error", err)
	case "memory":
		return NewMemoryStore()
	case "", "sqlite":
		if db != nil {
			return NewSQLiteStore(db)
		}
		logger.L.Warn("no sqlite database for persona store, using memory")
	default:
		logger.L.Warn("unknown persona backend, using memory", "backend", cfg.Backend)
	}
	return NewMemoryStore()
}
