package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/premium-billing-reconciler/internal/directory"
	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/internal/repository"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
)

// AccountRef аккаунт, к которому относится событие, и его состояние на момент сопоставления
type AccountRef struct {
	AccountID string
	Account   *domain.Account
}

// Resolver сопоставляет доменное событие с локальным аккаунтом
type Resolver struct {
	store     repository.AccountStore
	directory directory.Directory
	policy    domain.UsagePolicy
	log       *logger.Logger
}

// NewResolver создает новый экземпляр Resolver
func NewResolver(store repository.AccountStore, dir directory.Directory, policy domain.UsagePolicy, log *logger.Logger) *Resolver {
	return &Resolver{
		store:     store,
		directory: dir,
		policy:    policy,
		log:       log,
	}
}

// Resolve возвращает ссылку на аккаунт. Ошибка *domain.UnresolvedError терминальна,
// прочие ошибки означают сбой чтения и допускают повторную доставку.
func (r *Resolver) Resolve(ctx context.Context, event domain.Event) (AccountRef, error) {
	switch ev := event.(type) {
	case domain.CheckoutCompleted:
		return r.resolveCheckout(ctx, ev)
	case domain.InvoicePaid, domain.InvoicePaymentFailed, domain.SubscriptionCancelled:
		return r.resolveBySubscription(ctx, ev.BillingSubscriptionID())
	default:
		return AccountRef{}, fmt.Errorf("%w: %T", domain.ErrUnsupportedEvent, event)
	}
}

func (r *Resolver) resolveCheckout(ctx context.Context, ev domain.CheckoutCompleted) (AccountRef, error) {
	if ev.DiscordID == nil {
		return AccountRef{}, domain.NewUnresolvedError(domain.ReasonMissingCorrelationKey, ev.CheckoutSessionID)
	}
	externalID := *ev.DiscordID

	profile, err := r.directory.LookupByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AccountRef{}, domain.NewUnresolvedError(domain.ReasonUnknownExternalIdentity, externalID)
		}
		return AccountRef{}, fmt.Errorf("directory lookup: %w", err)
	}

	acc, err := r.store.UpsertAccount(ctx, profile.ExternalID, r.policy.Free())
	if err != nil {
		return AccountRef{}, fmt.Errorf("upsert account: %w", err)
	}

	r.log.Debugw("Checkout resolved", "accountID", acc.AccountID, "username", profile.Username)
	return AccountRef{AccountID: acc.AccountID, Account: acc}, nil
}

func (r *Resolver) resolveBySubscription(ctx context.Context, subscriptionID string) (AccountRef, error) {
	acc, err := r.store.FindAccountBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AccountRef{}, domain.NewUnresolvedError(domain.ReasonNoMatchingSubscription, subscriptionID)
		}
		return AccountRef{}, fmt.Errorf("find account by subscription: %w", err)
	}
	return AccountRef{AccountID: acc.AccountID, Account: acc}, nil
}
