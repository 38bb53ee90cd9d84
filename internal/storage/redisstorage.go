package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"CsvLogPump/internal/config"
	"CsvLogPump/internal/models"
)

const DefaultRedisKey = "csvlogpump:bookmarks"

// RedisStore хранит закладки в хеше Redis (поле: путь файла, значение: время RFC3339Nano).
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	// Создаём клиента Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	// Проверяем подключение с тайм-аутом
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}
	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: rdb, key: key}, nil
}

func (r *RedisStore) Get(filePath string) (models.Bookmark, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := r.client.HGet(ctx, r.key, filePath).Result()
	if errors.Is(err, redis.Nil) {
		return models.Bookmark{}, false, nil
	}
	if err != nil {
		return models.Bookmark{}, false, fmt.Errorf("redis hget: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return models.Bookmark{}, false, fmt.Errorf("parse bookmark %q: %w", raw, err)
	}
	return models.Bookmark{FilePath: filePath, LogicalTimestamp: ts}, true, nil
}

func (r *RedisStore) AddOrUpdate(b models.Bookmark) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.HSet(ctx, r.key, b.FilePath, b.LogicalTimestamp.Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
