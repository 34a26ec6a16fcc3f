package service

import (
	"context"
	"testing"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAccountService_GetAccount(t *testing.T) {
	store := new(MockAccountStore)
	store.On("FindAccountByExternalID", mock.Anything, "42").
		Return(&domain.Account{AccountID: "42", IsPremium: true, Subscription: &domain.Subscription{SubscriptionID: "sub_1", PastDue: true}}, nil)
	store.On("FindAccountByExternalID", mock.Anything, "7").Return(nil, domain.NewNotFoundError("account", "7"))

	svc := NewAccountService(store)

	view, err := svc.GetAccount(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePremiumPastDue, view.State)
	assert.Equal(t, "42", view.AccountID)

	_, err = svc.GetAccount(context.Background(), "7")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
