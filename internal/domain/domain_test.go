package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountState(t *testing.T) {
	var nilAccount *Account
	assert.Equal(t, StateFree, nilAccount.State())
	assert.Equal(t, StateFree, (&Account{AccountID: "1"}).State())

	active := &Account{AccountID: "1", IsPremium: true, Subscription: &Subscription{SubscriptionID: "sub_1"}}
	assert.Equal(t, StatePremiumActive, active.State())
	assert.True(t, active.HasSubscription("sub_1"))
	assert.False(t, active.HasSubscription("sub_2"))

	now := time.Now()
	pastDue := &Account{AccountID: "1", IsPremium: true, Subscription: &Subscription{SubscriptionID: "sub_1", PastDue: true, PastDueSince: &now}}
	assert.Equal(t, StatePremiumPastDue, pastDue.State())
}

func TestUsagePolicy(t *testing.T) {
	p := UsagePolicy{FreeAllowance: 20, PremiumAllowance: 500}
	assert.Equal(t, Usage{Tier: UsageTierFree, Allowance: 20}, p.Free())
	assert.Equal(t, Usage{Tier: UsageTierPremium, Allowance: 500}, p.Premium())
}

func TestOutcomeAcknowledge(t *testing.T) {
	assert.True(t, Applied(StatePremiumActive, "").Acknowledge())
	assert.True(t, NoOp(StateFree, "").Acknowledge())
	assert.True(t, Ignored("charge.refunded").Acknowledge())
	assert.True(t, Failed(errors.New("x"), false).Acknowledge())
	assert.False(t, Failed(errors.New("x"), true).Acknowledge())

	assert.Equal(t, "failed_retryable", Failed(nil, true).Label())
	assert.Equal(t, "failed_permanent", Failed(nil, false).Label())
}

func TestErrorClassification(t *testing.T) {
	unresolved := fmt.Errorf("resolve: %w", NewUnresolvedError(ReasonNoMatchingSubscription, "sub_1"))
	assert.ErrorIs(t, unresolved, ErrUnresolved)

	var ue *UnresolvedError
	if assert.ErrorAs(t, unresolved, &ue) {
		assert.Equal(t, ReasonNoMatchingSubscription, ue.Reason)
	}

	malformed := NewMalformedEventError("evt_1", "invoice.paid", "amount_due", errors.New("not a number"))
	assert.ErrorIs(t, malformed, ErrMalformedEvent)
	assert.Contains(t, malformed.Error(), "amount_due")

	assert.ErrorIs(t, NewNotFoundError("account", "42"), ErrNotFound)
	assert.ErrorIs(t, NewDuplicateError("subscription", "subscription_id", "sub_1"), ErrDuplicate)
	assert.ErrorIs(t, NewExternalServiceError("discord", "lookup", errors.New("boom")), ErrExternalServiceUnavailable)
}

func TestEventsAreSealedUnion(t *testing.T) {
	events := []Event{
		CheckoutCompleted{SubscriptionID: "sub_1"},
		InvoicePaid{SubscriptionID: "sub_1"},
		InvoicePaymentFailed{SubscriptionID: "sub_1"},
		SubscriptionCancelled{SubscriptionID: "sub_1"},
	}
	kinds := map[EventKind]bool{}
	for _, e := range events {
		assert.Equal(t, "sub_1", e.BillingSubscriptionID())
		kinds[e.Kind()] = true
	}
	assert.Len(t, kinds, 4)
}
