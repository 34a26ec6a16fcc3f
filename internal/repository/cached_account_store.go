package repository

import (
	"context"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
)

// CachedAccountStore ускоряет поиск аккаунта по ID подписки.
// Ошибки кеша не прерывают операцию, источник истины всегда основное хранилище.
type CachedAccountStore struct {
	repo  AccountStore
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedAccountStore создает хранилище с кешированием
func NewCachedAccountStore(repo AccountStore, cache *RedisCacheRepository, log *logger.Logger) *CachedAccountStore {
	return &CachedAccountStore{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func (r *CachedAccountStore) FindAccountByExternalID(ctx context.Context, accountID string) (*domain.Account, error) {
	return r.repo.FindAccountByExternalID(ctx, accountID)
}

// FindAccountBySubscriptionID сначала ищет владельца в кеше, затем читает аккаунт
func (r *CachedAccountStore) FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Account, error) {
	accountID, err := r.cache.GetSubscriptionOwner(ctx, subscriptionID)
	if err != nil {
		r.log.Warnw("Error getting subscription owner from cache", "error", err, "subscriptionID", subscriptionID)
	}

	if accountID != "" {
		acc, err := r.repo.FindAccountByExternalID(ctx, accountID)
		if err == nil && acc.HasSubscription(subscriptionID) {
			return acc, nil
		}
		// Запись устарела
		if err := r.cache.InvalidateSubscriptionOwner(ctx, subscriptionID); err != nil {
			r.log.Warnw("Failed to invalidate stale subscription owner", "error", err, "subscriptionID", subscriptionID)
		}
	}

	acc, err := r.repo.FindAccountBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheSubscriptionOwner(ctx, subscriptionID, acc.AccountID); err != nil {
		r.log.Warnw("Failed to cache subscription owner", "error", err, "subscriptionID", subscriptionID)
	}
	return acc, nil
}

func (r *CachedAccountStore) UpsertAccount(ctx context.Context, accountID string, usage domain.Usage) (*domain.Account, error) {
	return r.repo.UpsertAccount(ctx, accountID, usage)
}

// CreateSubscriptionForAccount сохраняет подписку и кеширует владельца
func (r *CachedAccountStore) CreateSubscriptionForAccount(ctx context.Context, sub domain.Subscription) error {
	if err := r.repo.CreateSubscriptionForAccount(ctx, sub); err != nil {
		return err
	}
	if err := r.cache.CacheSubscriptionOwner(ctx, sub.SubscriptionID, sub.AccountID); err != nil {
		r.log.Warnw("Failed to cache subscription owner after creation", "error", err, "subscriptionID", sub.SubscriptionID)
	}
	return nil
}

func (r *CachedAccountStore) UpgradeAccountToPremium(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error) {
	return r.repo.UpgradeAccountToPremium(ctx, accountID, subscriptionID, usage)
}

func (r *CachedAccountStore) UpdateSubscriptionDates(ctx context.Context, subscriptionID string, paidAt, nextDueAt time.Time) (bool, error) {
	return r.repo.UpdateSubscriptionDates(ctx, subscriptionID, paidAt, nextDueAt)
}

func (r *CachedAccountStore) MarkSubscriptionPastDue(ctx context.Context, subscriptionID string, failedAt time.Time) (bool, error) {
	return r.repo.MarkSubscriptionPastDue(ctx, subscriptionID, failedAt)
}

// DeleteSubscriptionAndDowngrade удаляет подписку и инвалидирует кеш
func (r *CachedAccountStore) DeleteSubscriptionAndDowngrade(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error) {
	changed, err := r.repo.DeleteSubscriptionAndDowngrade(ctx, accountID, subscriptionID, usage)
	if err != nil {
		return false, err
	}
	if err := r.cache.InvalidateSubscriptionOwner(ctx, subscriptionID); err != nil {
		r.log.Warnw("Failed to invalidate subscription owner after deletion", "error", err, "subscriptionID", subscriptionID)
	}
	return changed, nil
}
