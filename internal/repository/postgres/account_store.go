package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Pool часть pgxpool.Pool, которой пользуется хранилище
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountStore хранилище аккаунтов в PostgreSQL.
// Все мутации выражены условными UPDATE/DELETE, результат определяется числом затронутых строк.
type AccountStore struct {
	pool Pool
	log  *logger.Logger
}

// NewAccountStore создает хранилище поверх пула соединений
func NewAccountStore(pool Pool, log *logger.Logger) *AccountStore {
	return &AccountStore{pool: pool, log: log}
}

const selectAccount = `
	SELECT a.account_id, a.is_premium, a.usage_tier, a.usage_allowance, a.usage_counter,
	       a.created_at, a.updated_at,
	       s.subscription_id, s.billing_email, s.payment_method_hint, s.amount, s.currency,
	       s.first_payment_at, s.last_payment_at, s.next_due_at, s.past_due, s.past_due_since,
	       s.created_at, s.updated_at
	FROM accounts a
	LEFT JOIN subscriptions s ON s.account_id = a.account_id`

// FindAccountByExternalID возвращает аккаунт с подпиской
func (r *AccountStore) FindAccountByExternalID(ctx context.Context, accountID string) (*domain.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx, selectAccount+` WHERE a.account_id = $1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("account", accountID)
	}
	if err != nil {
		r.log.Errorw("Failed to get account from DB", "error", err, "accountID", accountID)
		return nil, fmt.Errorf("repository: failed to get account: %w", err)
	}
	return acc, nil
}

// FindAccountBySubscriptionID возвращает владельца подписки
func (r *AccountStore) FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx, selectAccount+` WHERE s.subscription_id = $1`, subscriptionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("subscription", subscriptionID)
	}
	if err != nil {
		r.log.Errorw("Failed to get account by subscription from DB", "error", err, "subscriptionID", subscriptionID)
		return nil, fmt.Errorf("repository: failed to get account by subscription: %w", err)
	}
	return acc, nil
}

// UpsertAccount создает аккаунт бесплатного уровня, если его нет
func (r *AccountStore) UpsertAccount(ctx context.Context, accountID string, usage domain.Usage) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (account_id, is_premium, usage_tier, usage_allowance, usage_counter, created_at, updated_at)
		VALUES ($1, FALSE, $2, $3, $3, now(), now())
		ON CONFLICT (account_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, accountID, string(usage.Tier), usage.Allowance)
	if err != nil {
		r.log.Errorw("Failed to upsert account", "error", err, "accountID", accountID)
		return nil, fmt.Errorf("repository: failed to upsert account: %w", err)
	}
	if tag.RowsAffected() > 0 {
		r.log.Infow("Account created", "accountID", accountID)
	}
	return r.FindAccountByExternalID(ctx, accountID)
}

// CreateSubscriptionForAccount вставляет подписку. Уникальность account_id и
// subscription_id обеспечивают ограничения таблицы.
func (r *AccountStore) CreateSubscriptionForAccount(ctx context.Context, sub domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			subscription_id, account_id, billing_email, payment_method_hint, amount, currency,
			first_payment_at, last_payment_at, next_due_at, past_due, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, now(), now())`

	_, err := r.pool.Exec(ctx, query,
		sub.SubscriptionID, sub.AccountID, sub.BillingEmail, sub.PaymentMethodHint, sub.Amount, sub.Currency,
		sub.FirstPaymentAt, sub.LastPaymentAt, sub.NextDueAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return domain.NewDuplicateError("subscription", pgErr.ConstraintName, sub.SubscriptionID)
			case pgForeignKeyViolation:
				return domain.NewNotFoundError("account", sub.AccountID)
			}
		}
		r.log.Errorw("Failed to create subscription in DB", "error", err, "subscriptionID", sub.SubscriptionID)
		return fmt.Errorf("repository: failed to create subscription: %w", err)
	}

	r.log.Debugw("Successfully created subscription in DB", "subscriptionID", sub.SubscriptionID, "accountID", sub.AccountID)
	return nil
}

// UpgradeAccountToPremium включает премиум, если подписка принадлежит аккаунту
func (r *AccountStore) UpgradeAccountToPremium(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error) {
	query := `
		UPDATE accounts
		SET is_premium = TRUE, usage_tier = $2, usage_allowance = $3, usage_counter = $3, updated_at = now()
		WHERE account_id = $1 AND is_premium = FALSE
		  AND EXISTS (SELECT 1 FROM subscriptions WHERE account_id = $1 AND subscription_id = $4)`

	tag, err := r.pool.Exec(ctx, query, accountID, string(usage.Tier), usage.Allowance, subscriptionID)
	if err != nil {
		r.log.Errorw("Failed to upgrade account", "error", err, "accountID", accountID)
		return false, fmt.Errorf("repository: failed to upgrade account: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateSubscriptionDates сдвигает даты оплаты вперед
func (r *AccountStore) UpdateSubscriptionDates(ctx context.Context, subscriptionID string, paidAt, nextDueAt time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET last_payment_at = GREATEST(last_payment_at, $2),
		    next_due_at = GREATEST(next_due_at, $3),
		    past_due = past_due AND COALESCE(past_due_since > $2, FALSE),
		    past_due_since = CASE WHEN past_due AND past_due_since > $2 THEN past_due_since END,
		    updated_at = now()
		WHERE subscription_id = $1
		  AND (last_payment_at < $2 OR next_due_at < $3 OR (past_due AND past_due_since <= $2))`

	tag, err := r.pool.Exec(ctx, query, subscriptionID, paidAt, nextDueAt)
	if err != nil {
		r.log.Errorw("Failed to update subscription dates", "error", err, "subscriptionID", subscriptionID)
		return false, fmt.Errorf("repository: failed to update subscription dates: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSubscriptionPastDue помечает подписку просроченной
func (r *AccountStore) MarkSubscriptionPastDue(ctx context.Context, subscriptionID string, failedAt time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET past_due = TRUE, past_due_since = $2, updated_at = now()
		WHERE subscription_id = $1
		  AND last_payment_at < $2
		  AND (past_due = FALSE OR past_due_since IS NULL OR past_due_since < $2)`

	tag, err := r.pool.Exec(ctx, query, subscriptionID, failedAt)
	if err != nil {
		r.log.Errorw("Failed to mark subscription past due", "error", err, "subscriptionID", subscriptionID)
		return false, fmt.Errorf("repository: failed to mark subscription past due: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteSubscriptionAndDowngrade удаляет подписку и понижает аккаунт в одной транзакции
func (r *AccountStore) DeleteSubscriptionAndDowngrade(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE subscription_id = $1 AND account_id = $2`, subscriptionID, accountID)
	if err != nil {
		r.rollback(ctx, tx)
		return false, fmt.Errorf("repository: failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.rollback(ctx, tx)
		return false, nil
	}

	query := `
		UPDATE accounts
		SET is_premium = FALSE, usage_tier = $2, usage_allowance = $3, usage_counter = $3, updated_at = now()
		WHERE account_id = $1`
	if _, err := tx.Exec(ctx, query, accountID, string(usage.Tier), usage.Allowance); err != nil {
		r.rollback(ctx, tx)
		return false, fmt.Errorf("repository: failed to downgrade account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("repository: failed to commit downgrade: %w", err)
	}
	r.log.Debugw("Subscription deleted and account downgraded", "subscriptionID", subscriptionID, "accountID", accountID)
	return true, nil
}

func (r *AccountStore) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.log.Warnw("Failed to rollback transaction", "error", err)
	}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		acc  domain.Account
		tier string

		subID, email, hint, currency   *string
		amount                         *int64
		firstAt, lastAt, nextAt, since *time.Time
		pastDue                        *bool
		subCreated, subUpdated         *time.Time
	)
	err := row.Scan(
		&acc.AccountID, &acc.IsPremium, &tier, &acc.UsageAllowance, &acc.UsageCounter,
		&acc.CreatedAt, &acc.UpdatedAt,
		&subID, &email, &hint, &amount, &currency,
		&firstAt, &lastAt, &nextAt, &pastDue, &since,
		&subCreated, &subUpdated,
	)
	if err != nil {
		return nil, err
	}
	acc.UsageTier = domain.UsageTier(tier)

	if subID != nil {
		acc.Subscription = &domain.Subscription{
			SubscriptionID:    *subID,
			AccountID:         acc.AccountID,
			BillingEmail:      deref(email),
			PaymentMethodHint: deref(hint),
			Currency:          deref(currency),
			PastDueSince:      since,
		}
		if amount != nil {
			acc.Subscription.Amount = *amount
		}
		if pastDue != nil {
			acc.Subscription.PastDue = *pastDue
		}
		acc.Subscription.FirstPaymentAt = derefTime(firstAt)
		acc.Subscription.LastPaymentAt = derefTime(lastAt)
		acc.Subscription.NextDueAt = derefTime(nextAt)
		acc.Subscription.CreatedAt = derefTime(subCreated)
		acc.Subscription.UpdatedAt = derefTime(subUpdated)
	}
	return &acc, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
