package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/directory"
	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/internal/integration/stripe"
	"github.com/Dhoini/premium-billing-reconciler/internal/metrics"
	"github.com/Dhoini/premium-billing-reconciler/internal/repository"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type pipeline struct {
	service   WebhookService
	store     repository.AccountStore
	journal   *repository.InMemoryWebhookEventRepository
	publisher *recordingPublisher
	registry  *prometheus.Registry
}

func newPipeline(store repository.AccountStore, timeout time.Duration) *pipeline {
	return newLoggedPipeline(store, timeout, logger.NewNop())
}

func newLoggedPipeline(store repository.AccountStore, timeout time.Duration, log *logger.Logger) *pipeline {
	p := &pipeline{
		store:     store,
		journal:   repository.NewInMemoryWebhookEventRepository(),
		publisher: &recordingPublisher{},
		registry:  prometheus.NewRegistry(),
	}
	p.service = NewWebhookService(WebhookServiceConfig{
		Normalizer: stripe.NewNormalizer(log),
		Resolver:   NewResolver(store, directory.NewStaticDirectory("42"), testPolicy, log),
		Reconciler: NewReconciler(store, testPolicy, testCycle, log),
		Journal:    p.journal,
		Publisher:  p.publisher,
		Metrics:    metrics.NewReconcileMetrics(p.registry),
		Timeout:    timeout,
	}, log)
	return p
}

func stripeEvent(id, eventType string, at time.Time, object string) stripego.Event {
	return stripego.Event{
		ID:      id,
		Type:    stripego.EventType(eventType),
		Created: at.Unix(),
		Data:    &stripego.EventData{Raw: json.RawMessage(object)},
	}
}

func checkoutObject(hint, subID string) string {
	fields := "[]"
	if hint != "" {
		fields = fmt.Sprintf(`[{"key":"discordid","type":"text","text":{"value":%q}}]`, hint)
	}
	return fmt.Sprintf(`{"id":"cs_1","mode":"subscription","subscription":%q,"amount_total":999,"currency":"usd",
		"customer_details":{"email":"user@example.com"},"payment_method_types":["card"],"custom_fields":%s}`, subID, fields)
}

func invoiceObject(subID string) string {
	return fmt.Sprintf(`{"id":"in_1","subscription":%q,"amount_due":999,"currency":"usd"}`, subID)
}

func TestWebhookService_CheckoutScenario(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second)

	outcome := p.service.ProcessEvent(ctx, stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1")))
	require.Equal(t, domain.OutcomeApplied, outcome.Kind, outcome.String())

	acc, err := p.store.FindAccountByExternalID(ctx, "42")
	require.NoError(t, err)
	assert.True(t, acc.IsPremium)
	assert.Equal(t, domain.StatePremiumActive, acc.State())
	assert.Equal(t, int64(999), acc.Subscription.Amount)
	assert.Equal(t, "usd", acc.Subscription.Currency)
	assert.Equal(t, "user@example.com", acc.Subscription.BillingEmail)
	assert.True(t, acc.Subscription.FirstPaymentAt.Equal(t0))
	assert.Equal(t, acc.Subscription.FirstPaymentAt, acc.Subscription.LastPaymentAt)

	require.Len(t, p.publisher.messages, 1)
	msg := p.publisher.messages[0]
	assert.Equal(t, "evt_1", msg.EventID)
	assert.Equal(t, "42", msg.AccountID)
	assert.Equal(t, "sub_1", msg.SubscriptionID)
	assert.Equal(t, domain.EventKindCheckoutCompleted, msg.Transition)
	assert.True(t, msg.IsPremium)
	assert.Equal(t, domain.UsageTierPremium, msg.UsageTier)

	entry, err := p.service.GetWebhookEventByExternalID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, entry.Status)
	assert.Equal(t, "applied", entry.Outcome)
	assert.Equal(t, "42", entry.AccountID)
	assert.NotNil(t, entry.ProcessedAt)
}

func TestWebhookService_LogsAndObservesProviderAmounts(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	p := newLoggedPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second, logger.FromZap(zap.New(core)))

	paidAt := t0.Add(testCycle)
	for _, event := range []stripego.Event{
		stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1")),
		stripeEvent("evt_2", stripe.EventInvoicePaid, paidAt, invoiceObject("sub_1")),
		stripeEvent("evt_3", stripe.EventInvoicePaid, paidAt, invoiceObject("sub_1")),
	} {
		p.service.ProcessEvent(ctx, event)
	}

	applied := logs.FilterMessage("Event applied").All()
	require.Len(t, applied, 2)
	for _, entry := range applied {
		assert.Equal(t, int64(999), entry.ContextMap()["amount"])
		assert.Equal(t, "usd", entry.ContextMap()["currency"])
	}

	noop := logs.FilterMessage("Event did not change state").All()
	require.Len(t, noop, 1)
	assert.Equal(t, "evt_3", noop[0].ContextMap()["eventID"])
	assert.Equal(t, int64(999), noop[0].ContextMap()["amount"])

	count, err := testutil.GatherAndCount(p.registry, "billing_event_amount")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per applied kind")
}

func TestWebhookService_ProcessedEventShortCircuits(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second)
	event := stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1"))

	require.Equal(t, domain.OutcomeApplied, p.service.ProcessEvent(ctx, event).Kind)

	outcome := p.service.ProcessEvent(ctx, event)
	assert.Equal(t, domain.OutcomeNoOp, outcome.Kind)
	assert.Equal(t, "event already processed", outcome.Reason)
	assert.Len(t, p.publisher.messages, 1)
}

func TestWebhookService_DistinctDeliveriesOfSameCheckout(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second)

	first := p.service.ProcessEvent(ctx, stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1")))
	second := p.service.ProcessEvent(ctx, stripeEvent("evt_2", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1")))

	assert.Equal(t, domain.OutcomeApplied, first.Kind)
	assert.Equal(t, domain.OutcomeNoOp, second.Kind)
	assert.Len(t, p.publisher.messages, 1, "only applied outcomes are published")
}

func TestWebhookService_UnresolvedIsAcknowledgedAndJournaledAsFailed(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second)
	event := stripeEvent("evt_1", stripe.EventCustomerSubscriptionDeleted, t0, `{"id":"sub_unknown"}`)

	outcome := p.service.ProcessEvent(ctx, event)
	assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
	assert.False(t, outcome.Retryable)
	assert.True(t, outcome.Acknowledge())
	assert.ErrorIs(t, outcome.Err, domain.ErrUnresolved)

	// Повторная доставка снова обрабатывается, счетчик попыток растет
	p.service.ProcessEvent(ctx, event)
	entry, err := p.journal.GetByExternalID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusFailed, entry.Status)
	assert.Equal(t, "failed_permanent", entry.Outcome)
	assert.Equal(t, 2, entry.AttemptCount)
	assert.Contains(t, entry.LastError, domain.ReasonNoMatchingSubscription)
	assert.Empty(t, p.publisher.messages)
}

func TestWebhookService_MissingHintCreatesNothing(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second)

	outcome := p.service.ProcessEvent(ctx, stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("", "sub_1")))
	assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
	assert.False(t, outcome.Retryable)

	_, err := p.store.FindAccountBySubscriptionID(ctx, "sub_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWebhookService_IgnoredAndMalformed(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second)

	ignored := p.service.ProcessEvent(ctx, stripeEvent("evt_1", "charge.refunded", t0, `{"id":"ch_1"}`))
	assert.Equal(t, domain.OutcomeIgnored, ignored.Kind)
	assert.True(t, ignored.Acknowledge())

	malformed := p.service.ProcessEvent(ctx, stripeEvent("evt_2", stripe.EventInvoicePaid, t0, `{"id":"in_1","subscription":"sub_1","amount_due":"lots"}`))
	assert.Equal(t, domain.OutcomeFailed, malformed.Kind)
	assert.False(t, malformed.Retryable)
	assert.ErrorIs(t, malformed.Err, domain.ErrMalformedEvent)

	events, err := p.service.GetWebhookEvents(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestWebhookService_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second)

	steps := []struct {
		event stripego.Event
		kind  domain.OutcomeKind
		state domain.EntitlementState
	}{
		{stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1")), domain.OutcomeApplied, domain.StatePremiumActive},
		{stripeEvent("evt_2", stripe.EventInvoicePaymentFailed, t0.Add(testCycle), invoiceObject("sub_1")), domain.OutcomeApplied, domain.StatePremiumPastDue},
		{stripeEvent("evt_3", stripe.EventInvoicePaid, t0.Add(testCycle+time.Hour), invoiceObject("sub_1")), domain.OutcomeApplied, domain.StatePremiumActive},
		{stripeEvent("evt_4", stripe.EventCustomerSubscriptionDeleted, t0.Add(2*testCycle), `{"id":"sub_1"}`), domain.OutcomeApplied, domain.StateFree},
	}

	for _, step := range steps {
		outcome := p.service.ProcessEvent(ctx, step.event)
		require.Equal(t, step.kind, outcome.Kind, "%s: %s", step.event.ID, outcome)
		assert.Equal(t, step.state, outcome.State, step.event.ID)
	}

	acc, err := p.store.FindAccountByExternalID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFree, acc.State())
	assert.False(t, acc.IsPremium)

	require.Len(t, p.publisher.messages, 4)
	assert.Equal(t, domain.StateFree, p.publisher.messages[3].State)
	assert.False(t, p.publisher.messages[3].IsPremium)
}

func TestWebhookService_PublishFailureDoesNotChangeOutcome(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(repository.NewInMemoryAccountStore(logger.NewNop()), time.Second)
	p.publisher.err = errors.New("broker unavailable")

	outcome := p.service.ProcessEvent(ctx, stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1")))
	assert.Equal(t, domain.OutcomeApplied, outcome.Kind)

	expected := `
		# HELP billing_entitlement_publish_failures_total The total number of entitlement change messages that failed to publish
		# TYPE billing_entitlement_publish_failures_total counter
		billing_entitlement_publish_failures_total 1
	`
	require.NoError(t, testutil.GatherAndCompare(p.registry, strings.NewReader(expected), "billing_entitlement_publish_failures_total"))
}

// slowStore хранилище, которое не отвечает до истечения контекста
type slowStore struct {
	*repository.InMemoryAccountStore
}

func (s slowStore) FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s slowStore) UpsertAccount(ctx context.Context, accountID string, usage domain.Usage) (*domain.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWebhookService_TimeoutIsRetryable(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(slowStore{repository.NewInMemoryAccountStore(logger.NewNop())}, 20*time.Millisecond)

	for _, event := range []stripego.Event{
		stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1")),
		stripeEvent("evt_2", stripe.EventInvoicePaid, t0, invoiceObject("sub_1")),
	} {
		outcome := p.service.ProcessEvent(ctx, event)
		assert.Equal(t, domain.OutcomeFailed, outcome.Kind, event.ID)
		assert.True(t, outcome.Retryable, event.ID)
		assert.False(t, outcome.Acknowledge(), event.ID)
		assert.ErrorIs(t, outcome.Err, domain.ErrTimeoutExceeded, event.ID)

		entry, err := p.journal.GetByExternalID(ctx, event.ID)
		require.NoError(t, err)
		assert.False(t, entry.IsTerminal(), "retryable failures must not short-circuit redelivery")
	}
}

// stalledJournal журнал, чтение из которого не отвечает до истечения контекста
type stalledJournal struct {
	*repository.InMemoryWebhookEventRepository
}

func (j stalledJournal) GetByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error) {
	<-ctx.Done()
	return domain.WebhookEvent{}, ctx.Err()
}

func TestWebhookService_StalledJournalLookupIsBounded(t *testing.T) {
	log := logger.NewNop()
	store := repository.NewInMemoryAccountStore(log)
	journal := stalledJournal{repository.NewInMemoryWebhookEventRepository()}
	service := NewWebhookService(WebhookServiceConfig{
		Normalizer: stripe.NewNormalizer(log),
		Resolver:   NewResolver(store, directory.NewStaticDirectory("42"), testPolicy, log),
		Reconciler: NewReconciler(store, testPolicy, testCycle, log),
		Journal:    journal,
		Publisher:  &recordingPublisher{},
		Metrics:    metrics.NewReconcileMetrics(prometheus.NewRegistry()),
		Timeout:    20 * time.Millisecond,
	}, log)

	done := make(chan domain.Outcome, 1)
	go func() {
		done <- service.ProcessEvent(context.Background(),
			stripeEvent("evt_1", stripe.EventCheckoutSessionCompleted, t0, checkoutObject("42", "sub_1")))
	}()

	select {
	case outcome := <-done:
		assert.Equal(t, domain.OutcomeFailed, outcome.Kind)
		assert.True(t, outcome.Retryable)
		assert.ErrorIs(t, outcome.Err, domain.ErrTimeoutExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("ProcessEvent did not return within the reconcile timeout")
	}

	_, err := store.FindAccountByExternalID(context.Background(), "42")
	assert.ErrorIs(t, err, domain.ErrNotFound, "nothing is applied once the wait budget is spent")
}
