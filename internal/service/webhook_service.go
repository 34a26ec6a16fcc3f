package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/internal/integration/stripe"
	"github.com/Dhoini/premium-billing-reconciler/internal/kafka"
	"github.com/Dhoini/premium-billing-reconciler/internal/metrics"
	"github.com/Dhoini/premium-billing-reconciler/internal/repository"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	stripego "github.com/stripe/stripe-go/v78"
)

const (
	providerStripe = "stripe"

	// Запись журнала и публикация выполняются вне бюджета сверки
	sideEffectTimeout = 5 * time.Second
)

// WebhookService интерфейс сервиса обработки событий провайдера
type WebhookService interface {
	// ProcessEvent обрабатывает проверенное событие и возвращает терминальный результат
	ProcessEvent(ctx context.Context, event stripego.Event) domain.Outcome

	// GetWebhookEvents возвращает журнал событий
	GetWebhookEvents(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error)

	// GetWebhookEventByExternalID возвращает запись журнала по ID события в Stripe
	GetWebhookEventByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error)
}

// WebhookServiceConfig зависимости сервиса
type WebhookServiceConfig struct {
	Normalizer *stripe.Normalizer
	Resolver   *Resolver
	Reconciler *Reconciler
	Journal    repository.WebhookEventRepository
	Publisher  kafka.Publisher
	Metrics    metrics.ReconcileMetrics
	Timeout    time.Duration
}

type webhookService struct {
	normalizer *stripe.Normalizer
	resolver   *Resolver
	reconciler *Reconciler
	journal    repository.WebhookEventRepository
	publisher  kafka.Publisher
	metrics    metrics.ReconcileMetrics
	timeout    time.Duration
	log        *logger.Logger
}

// NewWebhookService создает новый сервис обработки событий
func NewWebhookService(cfg WebhookServiceConfig, log *logger.Logger) WebhookService {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	return &webhookService{
		normalizer: cfg.Normalizer,
		resolver:   cfg.Resolver,
		reconciler: cfg.Reconciler,
		journal:    cfg.Journal,
		publisher:  publisher,
		metrics:    cfg.Metrics,
		timeout:    cfg.Timeout,
		log:        log,
	}
}

// ProcessEvent нормализует, сопоставляет и применяет событие.
// Внутренних повторов нет: повторную доставку инициирует провайдер по HTTP статусу.
func (s *webhookService) ProcessEvent(ctx context.Context, event stripego.Event) domain.Outcome {
	eventType := string(event.Type)
	log := s.log.With("eventID", event.ID, "type", eventType)
	s.metrics.IncEventReceived(eventType)

	domainEvent, err := s.normalizer.Normalize(event)
	if err != nil {
		var outcome domain.Outcome
		if errors.Is(err, stripe.ErrEventIgnored) {
			outcome = domain.Ignored(err.Error())
			log.Debugw("Event ignored", "reason", err.Error())
		} else {
			outcome = domain.Failed(err, false)
			log.Warnw("Malformed event", "error", err)
		}
		s.metrics.IncOutcome(eventType, outcome.Label())
		s.record(ctx, event, "", outcome)
		return outcome
	}
	kind := string(domainEvent.Kind())

	// Проверка журнала и сверка делят один бюджет ожидания
	work, cancel := s.withTimeout(ctx)
	defer cancel()

	if s.alreadyProcessed(work, event.ID) {
		outcome := domain.NoOp("", "event already processed")
		log.Infow("Event already processed")
		s.metrics.IncOutcome(kind, outcome.Label())
		return outcome
	}

	start := time.Now()
	ref, outcome := s.reconcile(work, domainEvent)
	s.metrics.ObserveDuration(kind, time.Since(start))
	s.metrics.IncOutcome(kind, outcome.Label())

	fields := []interface{}{"accountID", ref.AccountID, "state", outcome.State, "reason", outcome.Reason}
	amount, currency, hasAmount := eventAmount(domainEvent)
	if hasAmount {
		fields = append(fields, "amount", amount, "currency", currency)
	}

	switch {
	case outcome.Kind == domain.OutcomeApplied:
		log.Infow("Event applied", fields...)
		if hasAmount {
			s.metrics.ObserveAmount(kind, amount, currency)
		}
		s.publish(ctx, ref, domainEvent, outcome)
	case outcome.Kind == domain.OutcomeNoOp:
		log.Infow("Event did not change state", fields...)
	case errors.Is(outcome.Err, domain.ErrUnresolved):
		log.Warnw("Event not correlated with an account", "error", outcome.Err)
	case outcome.Retryable:
		log.Errorw("Event reconciliation failed, requesting redelivery", "accountID", ref.AccountID, "error", outcome.Err)
	default:
		log.Errorw("Event reconciliation failed permanently", "accountID", ref.AccountID, "error", outcome.Err)
	}

	s.record(ctx, event, ref.AccountID, outcome)
	return outcome
}

// eventAmount сумма и валюта события, если провайдер их передает
func eventAmount(event domain.Event) (int64, string, bool) {
	switch ev := event.(type) {
	case domain.CheckoutCompleted:
		return ev.Amount, ev.Currency, true
	case domain.InvoicePaid:
		return ev.AmountDue, ev.Currency, true
	case domain.InvoicePaymentFailed:
		return ev.AmountDue, ev.Currency, true
	default:
		return 0, "", false
	}
}

func (s *webhookService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// reconcile сопоставляет и применяет событие, ctx уже ограничен таймаутом
func (s *webhookService) reconcile(ctx context.Context, event domain.Event) (AccountRef, domain.Outcome) {
	if err := ctx.Err(); err != nil {
		return AccountRef{}, domain.Failed(fmt.Errorf("%w: %v", domain.ErrTimeoutExceeded, err), true)
	}

	ref, err := s.resolver.Resolve(ctx, event)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnresolved), errors.Is(err, domain.ErrUnsupportedEvent):
			return ref, domain.Failed(err, false)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
			return ref, domain.Failed(fmt.Errorf("%w: %v", domain.ErrTimeoutExceeded, err), true)
		default:
			return ref, domain.Failed(err, true)
		}
	}

	outcome := s.reconciler.Apply(ctx, ref, event)
	return ref, outcome
}

func (s *webhookService) alreadyProcessed(ctx context.Context, externalID string) bool {
	if s.journal == nil {
		return false
	}
	existing, err := s.journal.GetByExternalID(ctx, externalID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warnw("Failed to read webhook journal", "error", err, "eventID", externalID)
		}
		return false
	}
	return existing.IsTerminal()
}

// record сохраняет результат попытки. Ошибка журнала не меняет результат.
func (s *webhookService) record(ctx context.Context, event stripego.Event, accountID string, outcome domain.Outcome) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	entry := domain.WebhookEvent{
		ExternalID: event.ID,
		Type:       string(event.Type),
		Provider:   providerStripe,
		Status:     domain.WebhookEventStatusProcessed,
		Outcome:    outcome.Label(),
		AccountID:  accountID,
	}
	if outcome.Kind == domain.OutcomeFailed {
		entry.Status = domain.WebhookEventStatusFailed
		entry.LastError = outcome.Reason
	} else {
		now := time.Now().UTC()
		entry.ProcessedAt = &now
	}

	if _, err := s.journal.SaveResult(ctx, entry); err != nil {
		s.log.Warnw("Failed to record webhook event", "error", err, "eventID", event.ID)
	}
}

// publish отправляет уведомление об изменении доступа. Состояние уже сохранено,
// поэтому ошибка только логируется.
func (s *webhookService) publish(ctx context.Context, ref AccountRef, event domain.Event, outcome domain.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	msg := kafka.EntitlementChanged{
		EventID:        event.ProviderEventID(),
		AccountID:      ref.AccountID,
		SubscriptionID: event.BillingSubscriptionID(),
		Transition:     event.Kind(),
		State:          outcome.State,
		IsPremium:      outcome.State != domain.StateFree,
		UsageTier:      domain.UsageTierFree,
		OccurredAt:     event.OccurredAt(),
	}
	if msg.IsPremium {
		msg.UsageTier = domain.UsageTierPremium
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}

	if err := s.publisher.PublishEntitlementChanged(ctx, msg); err != nil {
		s.metrics.IncPublishFailed()
		s.log.Errorw("Failed to publish entitlement change", "error", err, "accountID", ref.AccountID)
	}
}

// GetWebhookEvents возвращает журнал событий
func (s *webhookService) GetWebhookEvents(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error) {
	if s.journal == nil {
		return []domain.WebhookEvent{}, nil
	}
	return s.journal.List(ctx, limit, offset)
}

// GetWebhookEventByExternalID возвращает запись журнала
func (s *webhookService) GetWebhookEventByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error) {
	if s.journal == nil {
		return domain.WebhookEvent{}, domain.NewNotFoundError("webhook_event", externalID)
	}
	return s.journal.GetByExternalID(ctx, externalID)
}
