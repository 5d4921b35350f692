package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hotelhub/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// Снимаем блокировку только если она все еще наша
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisRoomLocker is a per-room mutex shared by every API replica. A lock
// outlives a crashed holder by at most ttl.
type RedisRoomLocker struct {
	client     *redis.Client
	ttl        time.Duration
	retryEvery time.Duration
}

func NewRedisRoomLocker(client *redis.Client, ttl time.Duration) *RedisRoomLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisRoomLocker{
		client:     client,
		ttl:        ttl,
		retryEvery: 25 * time.Millisecond,
	}
}

func roomLockKey(roomID string) string {
	return "room_lock:" + roomID
}

func (l *RedisRoomLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	if l.client == nil {
		return nil, errors.New("redis client is nil")
	}
	key := roomLockKey(roomID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to acquire room lock: %w", err)
		}
		if ok {
			return l.releaser(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryEvery):
		}
	}
}

func (l *RedisRoomLocker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// Истекший ключ снимется сам по TTL
			_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
	}
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
