// Package cache — кэш снимков членства в Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/membership-reconciler/internal/config"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

const membershipKeyPrefix = "membership:"

// Cache — обёртка над клиентом Redis.
type Cache struct {
	Db  *redis.Client
	ttl time.Duration
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection, ttl time.Duration) (*Cache, error) {
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
	return &Cache{Db: db, ttl: ttl}, nil
}

// Get читает значение key в result. found=false, если ключа нет.
func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set сохраняет value в JSON с временем жизни expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Db.Set(ctx, key, jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetIfAbsent сохраняет value, только если key ещё нет. stored=false, если ключ уже был.
func (c *Cache) SetIfAbsent(ctx context.Context, key string, value any, expiration time.Duration) (bool, error) {
	const op = "cache.SetIfAbsent"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	stored, err := c.Db.SetNX(ctx, key, jsonData, expiration).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return stored, nil
}

// Invalidate удаляет key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	const op = "cache.Invalidate"
	if err := c.Db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetMembership возвращает закэшированного пользователя.
func (c *Cache) GetMembership(ctx context.Context, userID string) (*models.User, bool, error) {
	var u models.User
	found, err := c.Get(ctx, membershipKeyPrefix+userID, &u)
	if err != nil || !found {
		return nil, false, err
	}
	return &u, true, nil
}

// SetMembership перезаписывает снимок пользователя на время ttl.
func (c *Cache) SetMembership(ctx context.Context, u *models.User) error {
	return c.Set(ctx, membershipKeyPrefix+u.ID, u, c.ttl)
}

// FillMembership кэширует прочитанного пользователя, если снимка ещё нет.
// Свежий снимок, записанный реконсилятором, не перезаписывается.
func (c *Cache) FillMembership(ctx context.Context, u *models.User) error {
	_, err := c.SetIfAbsent(ctx, membershipKeyPrefix+u.ID, u, c.ttl)
	return err
}

// InvalidateMembership сбрасывает снимок пользователя после записи членства.
func (c *Cache) InvalidateMembership(ctx context.Context, userID string) error {
	return c.Invalidate(ctx, membershipKeyPrefix+userID)
}

// Close закрывает соединение.
func (c *Cache) Close() error {
	return c.Db.Close()
}
