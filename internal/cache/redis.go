// Package cache реализует кэш на Redis: JSON-кэширование ответов админки
// и хранение курсора обновлений Telegram между перезапусками бота.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phoenix-invest/phoenix-crm/internal/config"
)

// updateCursorKey ключ, под которым хранится offset getUpdates.
const updateCursorKey = "telegram:update_cursor"

type Cache struct {
	Db *redis.Client
}

func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

func (c *Cache) Get(key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	err = json.Unmarshal([]byte(val), result)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (c *Cache) Set(key string, value any, expiration time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Db.Set(context.Background(), key, jsonData, expiration).Err()
}

func (c *Cache) Invalidate(key string) error {
	return c.Db.Del(context.Background(), key).Err()
}

// GetUpdateCursor возвращает сохранённый offset getUpdates.
// Если курсор ещё не сохранялся, возвращает 0.
func (c *Cache) GetUpdateCursor(ctx context.Context) (int64, error) {
	const op = "cache.GetUpdateCursor"
	val, err := c.Db.Get(ctx, updateCursorKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	cursor, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return cursor, nil
}

// SetUpdateCursor сохраняет offset getUpdates без срока жизни.
func (c *Cache) SetUpdateCursor(ctx context.Context, cursor int64) error {
	const op = "cache.SetUpdateCursor"
	if err := c.Db.Set(ctx, updateCursorKey, strconv.FormatInt(cursor, 10), 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
