package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/internal/repository"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
)

// Reconciler применяет доменные события к состоянию аккаунта.
// Каждая мутация условна относительно сохраненного состояния,
// поэтому повтор и перестановка событий сходятся к одному результату.
type Reconciler struct {
	store  repository.AccountStore
	policy domain.UsagePolicy
	cycle  time.Duration
	now    func() time.Time
	log    *logger.Logger
}

// NewReconciler создает движок сверки
func NewReconciler(store repository.AccountStore, policy domain.UsagePolicy, cycle time.Duration, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		policy: policy,
		cycle:  cycle,
		now:    time.Now,
		log:    log,
	}
}

// Apply применяет событие к аккаунту из ref
func (e *Reconciler) Apply(ctx context.Context, ref AccountRef, event domain.Event) domain.Outcome {
	if ref.Account == nil {
		return domain.Failed(fmt.Errorf("%w: empty account reference", domain.ErrInvalidInput), false)
	}

	switch ev := event.(type) {
	case domain.CheckoutCompleted:
		return e.applyCheckout(ctx, ref.Account, ev)
	case domain.InvoicePaid:
		return e.applyInvoicePaid(ctx, ref.Account, ev)
	case domain.InvoicePaymentFailed:
		return e.applyPaymentFailed(ctx, ref.Account, ev)
	case domain.SubscriptionCancelled:
		return e.applyCancelled(ctx, ref.Account, ev)
	default:
		e.log.Errorw("Event kind has no transition", "type", fmt.Sprintf("%T", event))
		return domain.Failed(fmt.Errorf("%w: %T", domain.ErrUnsupportedEvent, event), false)
	}
}

func (e *Reconciler) applyCheckout(ctx context.Context, acc *domain.Account, ev domain.CheckoutCompleted) domain.Outcome {
	state := acc.State()

	if state != domain.StateFree {
		// Подписка создана, но премиум не выставлен: предыдущая доставка прервалась между шагами
		if !acc.IsPremium && acc.HasSubscription(ev.SubscriptionID) {
			return e.upgrade(ctx, acc, ev.SubscriptionID, "premium upgrade completed")
		}
		if !acc.HasSubscription(ev.SubscriptionID) {
			e.log.Warnw("Checkout for account with another subscription",
				"accountID", acc.AccountID,
				"activeSubscriptionID", acc.Subscription.SubscriptionID,
				"checkoutSubscriptionID", ev.SubscriptionID)
		}
		return domain.NoOp(state, "duplicate checkout")
	}

	now := e.eventTime(ev)
	sub := domain.Subscription{
		SubscriptionID:    ev.SubscriptionID,
		AccountID:         acc.AccountID,
		BillingEmail:      ev.BillingEmail,
		PaymentMethodHint: ev.PaymentMethodHint,
		Amount:            ev.Amount,
		Currency:          ev.Currency,
		FirstPaymentAt:    now,
		LastPaymentAt:     now,
		NextDueAt:         now.Add(e.cycle),
	}
	if err := e.store.CreateSubscriptionForAccount(ctx, sub); err != nil {
		if !errors.Is(err, domain.ErrDuplicate) {
			return e.storeFailure(state, err)
		}
		// Параллельная доставка успела создать подписку, апгрейд ниже проверит, чья она
		e.log.Infow("Subscription already exists", "accountID", acc.AccountID, "subscriptionID", ev.SubscriptionID)
	}

	return e.upgrade(ctx, acc, ev.SubscriptionID, "subscription created")
}

func (e *Reconciler) upgrade(ctx context.Context, acc *domain.Account, subscriptionID, reason string) domain.Outcome {
	changed, err := e.store.UpgradeAccountToPremium(ctx, acc.AccountID, subscriptionID, e.policy.Premium())
	if err != nil {
		return e.storeFailure(acc.State(), err)
	}
	if !changed {
		return domain.NoOp(e.currentState(ctx, acc), "duplicate checkout")
	}
	return domain.Applied(domain.StatePremiumActive, reason)
}

func (e *Reconciler) applyInvoicePaid(ctx context.Context, acc *domain.Account, ev domain.InvoicePaid) domain.Outcome {
	if !acc.HasSubscription(ev.SubscriptionID) {
		return domain.NoOp(acc.State(), "no active subscription")
	}

	paidAt := e.eventTime(ev)
	changed, err := e.store.UpdateSubscriptionDates(ctx, ev.SubscriptionID, paidAt, paidAt.Add(e.cycle))
	if err != nil {
		return e.storeFailure(acc.State(), err)
	}
	if !changed {
		return domain.NoOp(acc.State(), "payment already recorded")
	}

	next := domain.StatePremiumActive
	// Неуспешная попытка новее этой оплаты остается в силе
	if sub := acc.Subscription; sub.PastDue && sub.PastDueSince != nil && sub.PastDueSince.After(paidAt) {
		next = domain.StatePremiumPastDue
	}
	return domain.Applied(next, "billing period advanced")
}

func (e *Reconciler) applyPaymentFailed(ctx context.Context, acc *domain.Account, ev domain.InvoicePaymentFailed) domain.Outcome {
	if !acc.HasSubscription(ev.SubscriptionID) {
		return domain.NoOp(acc.State(), "no active subscription")
	}

	changed, err := e.store.MarkSubscriptionPastDue(ctx, ev.SubscriptionID, e.eventTime(ev))
	if err != nil {
		return e.storeFailure(acc.State(), err)
	}
	if !changed {
		return domain.NoOp(acc.State(), "failure already recorded or superseded by payment")
	}
	return domain.Applied(domain.StatePremiumPastDue, "marked past due")
}

func (e *Reconciler) applyCancelled(ctx context.Context, acc *domain.Account, ev domain.SubscriptionCancelled) domain.Outcome {
	if !acc.HasSubscription(ev.SubscriptionID) {
		return domain.NoOp(acc.State(), "no active subscription")
	}

	changed, err := e.store.DeleteSubscriptionAndDowngrade(ctx, acc.AccountID, ev.SubscriptionID, e.policy.Free())
	if err != nil {
		return e.storeFailure(acc.State(), err)
	}
	if !changed {
		return domain.NoOp(domain.StateFree, "subscription already removed")
	}
	return domain.Applied(domain.StateFree, "subscription cancelled")
}

// storeFailure классифицирует ошибку хранилища.
// Нарушение уникальности означает, что изменение уже применено.
// Пропавший аккаунт повторяется: при новой доставке сопоставление даст окончательный ответ.
func (e *Reconciler) storeFailure(state domain.EntitlementState, err error) domain.Outcome {
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		e.log.Infow("Store reports change already applied", "error", err)
		return domain.NoOp(state, "already applied")
	case errors.Is(err, domain.ErrNotFound):
		e.log.Warnw("Account disappeared during reconciliation", "error", err)
		return domain.Failed(err, true)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.Failed(fmt.Errorf("%w: %v", domain.ErrTimeoutExceeded, err), true)
	default:
		e.log.Errorw("Store mutation failed", "error", err)
		return domain.Failed(err, true)
	}
}

func (e *Reconciler) currentState(ctx context.Context, acc *domain.Account) domain.EntitlementState {
	fresh, err := e.store.FindAccountByExternalID(ctx, acc.AccountID)
	if err != nil {
		return acc.State()
	}
	return fresh.State()
}

// eventTime время события у провайдера, часы сервиса только если его нет
func (e *Reconciler) eventTime(ev domain.Event) time.Time {
	if t := ev.OccurredAt(); !t.IsZero() {
		return t
	}
	return e.now().UTC()
}
