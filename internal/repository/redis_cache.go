package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс ключа соответствия подписки и аккаунта
	subscriptionOwnerKeyPrefix = "subscription_owner:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository кеширует соответствие subscription_id -> account_id.
// Само состояние аккаунта не кешируется.
type RedisCacheRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, ttl time.Duration, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return NewRedisCacheFromClient(client, ttl, log), nil
}

// NewRedisCacheFromClient оборачивает готовый клиент
func NewRedisCacheFromClient(client redis.UniversalClient, ttl time.Duration, log *logger.Logger) *RedisCacheRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCacheRepository{client: client, ttl: ttl, log: log}
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis
func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// CacheSubscriptionOwner запоминает владельца подписки
func (r *RedisCacheRepository) CacheSubscriptionOwner(ctx context.Context, subscriptionID, accountID string) error {
	if err := r.client.Set(ctx, subscriptionOwnerKey(subscriptionID), accountID, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache subscription owner: %w", err)
	}
	r.log.Debugw("Subscription owner cached", "subscriptionID", subscriptionID, "accountID", accountID)
	return nil
}

// GetSubscriptionOwner возвращает владельца подписки или пустую строку при промахе
func (r *RedisCacheRepository) GetSubscriptionOwner(ctx context.Context, subscriptionID string) (string, error) {
	accountID, err := r.client.Get(ctx, subscriptionOwnerKey(subscriptionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get subscription owner from cache: %w", err)
	}
	return accountID, nil
}

// InvalidateSubscriptionOwner удаляет запись из кеша
func (r *RedisCacheRepository) InvalidateSubscriptionOwner(ctx context.Context, subscriptionID string) error {
	if err := r.client.Del(ctx, subscriptionOwnerKey(subscriptionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate subscription owner: %w", err)
	}
	return nil
}

func subscriptionOwnerKey(subscriptionID string) string {
	return subscriptionOwnerKeyPrefix + subscriptionID
}
