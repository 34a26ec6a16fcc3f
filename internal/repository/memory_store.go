package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
)

// InMemoryAccountStore реализация хранилища аккаунтов в памяти.
// Все операции выполняются под одной блокировкой, что дает ту же
// атомарность, что и условные UPDATE в PostgreSQL.
type InMemoryAccountStore struct {
	accounts      map[string]*domain.Account
	subscriptions map[string]string // subscription_id -> account_id
	mutex         sync.RWMutex
	now           func() time.Time
	log           *logger.Logger
}

// NewInMemoryAccountStore создает новое хранилище в памяти
func NewInMemoryAccountStore(log *logger.Logger) *InMemoryAccountStore {
	return &InMemoryAccountStore{
		accounts:      make(map[string]*domain.Account),
		subscriptions: make(map[string]string),
		now:           time.Now,
		log:           log,
	}
}

// FindAccountByExternalID возвращает копию аккаунта
func (r *InMemoryAccountStore) FindAccountByExternalID(ctx context.Context, accountID string) (*domain.Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.NewNotFoundError("account", accountID)
	}
	return cloneAccount(acc), nil
}

// FindAccountBySubscriptionID возвращает владельца подписки
func (r *InMemoryAccountStore) FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	accountID, ok := r.subscriptions[subscriptionID]
	if !ok {
		return nil, domain.NewNotFoundError("subscription", subscriptionID)
	}
	return cloneAccount(r.accounts[accountID]), nil
}

// UpsertAccount создает аккаунт, если его нет
func (r *InMemoryAccountStore) UpsertAccount(ctx context.Context, accountID string, usage domain.Usage) (*domain.Account, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		now := r.now()
		acc = &domain.Account{
			AccountID:      accountID,
			UsageTier:      usage.Tier,
			UsageAllowance: usage.Allowance,
			UsageCounter:   usage.Allowance,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		r.accounts[accountID] = acc
		r.log.Debugw("Account created in memory", "accountID", accountID)
	}
	return cloneAccount(acc), nil
}

// CreateSubscriptionForAccount создает подписку аккаунта
func (r *InMemoryAccountStore) CreateSubscriptionForAccount(ctx context.Context, sub domain.Subscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	acc, ok := r.accounts[sub.AccountID]
	if !ok {
		return domain.NewNotFoundError("account", sub.AccountID)
	}
	if _, taken := r.subscriptions[sub.SubscriptionID]; taken {
		return domain.NewDuplicateError("subscription", "subscription_id", sub.SubscriptionID)
	}
	if acc.Subscription != nil {
		return domain.NewDuplicateError("subscription", "account_id", sub.AccountID)
	}

	now := r.now()
	sub.PastDue = false
	sub.PastDueSince = nil
	sub.CreatedAt = now
	sub.UpdatedAt = now
	acc.Subscription = &sub
	acc.UpdatedAt = now
	r.subscriptions[sub.SubscriptionID] = sub.AccountID
	return nil
}

// UpgradeAccountToPremium включает премиум-доступ
func (r *InMemoryAccountStore) UpgradeAccountToPremium(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok || acc.IsPremium || !acc.HasSubscription(subscriptionID) {
		return false, nil
	}
	acc.IsPremium = true
	applyUsage(acc, usage)
	acc.UpdatedAt = r.now()
	return true, nil
}

// UpdateSubscriptionDates сдвигает даты вперед
func (r *InMemoryAccountStore) UpdateSubscriptionDates(ctx context.Context, subscriptionID string, paidAt, nextDueAt time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sub := r.subscriptionLocked(subscriptionID)
	if sub == nil || !paymentAdvances(sub, paidAt, nextDueAt) {
		return false, nil
	}
	if clearsPastDue(sub, paidAt) {
		sub.PastDue = false
		sub.PastDueSince = nil
	}
	sub.LastPaymentAt = laterOf(sub.LastPaymentAt, paidAt)
	sub.NextDueAt = laterOf(sub.NextDueAt, nextDueAt)
	sub.UpdatedAt = r.now()
	return true, nil
}

// MarkSubscriptionPastDue помечает подписку просроченной
func (r *InMemoryAccountStore) MarkSubscriptionPastDue(ctx context.Context, subscriptionID string, failedAt time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sub := r.subscriptionLocked(subscriptionID)
	if sub == nil || !sub.LastPaymentAt.Before(failedAt) {
		return false, nil
	}
	// Повторная неуспешная попытка сдвигает начало просрочки только вперед
	if sub.PastDue && sub.PastDueSince != nil && !failedAt.After(*sub.PastDueSince) {
		return false, nil
	}
	since := failedAt
	sub.PastDue = true
	sub.PastDueSince = &since
	sub.UpdatedAt = r.now()
	return true, nil
}

// DeleteSubscriptionAndDowngrade удаляет подписку и понижает уровень
func (r *InMemoryAccountStore) DeleteSubscriptionAndDowngrade(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok || !acc.HasSubscription(subscriptionID) {
		return false, nil
	}
	delete(r.subscriptions, subscriptionID)
	acc.Subscription = nil
	acc.IsPremium = false
	applyUsage(acc, usage)
	acc.UpdatedAt = r.now()
	return true, nil
}

func (r *InMemoryAccountStore) subscriptionLocked(subscriptionID string) *domain.Subscription {
	accountID, ok := r.subscriptions[subscriptionID]
	if !ok {
		return nil
	}
	return r.accounts[accountID].Subscription
}

func applyUsage(acc *domain.Account, usage domain.Usage) {
	acc.UsageTier = usage.Tier
	acc.UsageAllowance = usage.Allowance
	acc.UsageCounter = usage.Allowance
}

func cloneAccount(acc *domain.Account) *domain.Account {
	if acc == nil {
		return nil
	}
	out := *acc
	if acc.Subscription != nil {
		sub := *acc.Subscription
		if sub.PastDueSince != nil {
			since := *sub.PastDueSince
			sub.PastDueSince = &since
		}
		out.Subscription = &sub
	}
	return &out
}
