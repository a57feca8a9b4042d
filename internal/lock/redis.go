package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу токена.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisConfig — параметры распределённой блокировки.
type RedisConfig struct {
	// Client — клиент Redis
	Client *redis.Client
	// TTL — время жизни ключа; страховка от зависшего владельца
	TTL time.Duration
	// RetryInterval — пауза между попытками захвата
	RetryInterval time.Duration
	// Prefix — префикс ключей Redis
	Prefix string
	Logger *slog.Logger
}

// Redis — блокировка SET NX PX с токеном владельца.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedis создаёт распределённый блокировщик.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, errors.New("не задан клиент Redis")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("TTL блокировки должен быть больше 0")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "sm:lock:"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Redis{
		client: cfg.Client,
		ttl:    cfg.TTL,
		retry:  cfg.RetryInterval,
		prefix: cfg.Prefix,
		logger: cfg.Logger.With(slog.String("component", "redis_lock")),
	}, nil
}

// Lock повторяет SET NX до успеха или отмены контекста.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("ошибка захвата блокировки %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Контекст запроса мог уже истечь, освобождаем с отдельным таймаутом.
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, r.client, []string{redisKey}, token).Err(); err != nil {
				r.logger.Warn("Ошибка освобождения блокировки",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		})
	}, nil
}

// CheckReady проверяет доступность Redis (для readiness probe).
func (r *Redis) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "Redis доступен"
}
