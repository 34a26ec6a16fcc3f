package service

import (
	"context"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/internal/kafka"
	"github.com/stretchr/testify/mock"
)

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) FindAccountByExternalID(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountStore) FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Account, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountStore) UpsertAccount(ctx context.Context, accountID string, usage domain.Usage) (*domain.Account, error) {
	args := m.Called(ctx, accountID, usage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountStore) CreateSubscriptionForAccount(ctx context.Context, sub domain.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockAccountStore) UpgradeAccountToPremium(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error) {
	args := m.Called(ctx, accountID, subscriptionID, usage)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) UpdateSubscriptionDates(ctx context.Context, subscriptionID string, paidAt, nextDueAt time.Time) (bool, error) {
	args := m.Called(ctx, subscriptionID, paidAt, nextDueAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) MarkSubscriptionPastDue(ctx context.Context, subscriptionID string, failedAt time.Time) (bool, error) {
	args := m.Called(ctx, subscriptionID, failedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) DeleteSubscriptionAndDowngrade(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error) {
	args := m.Called(ctx, accountID, subscriptionID, usage)
	return args.Bool(0), args.Error(1)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) LookupByExternalID(ctx context.Context, id string) (domain.Profile, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Profile), args.Error(1)
}

type recordingPublisher struct {
	messages []kafka.EntitlementChanged
	err      error
}

func (p *recordingPublisher) PublishEntitlementChanged(ctx context.Context, msg kafka.EntitlementChanged) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
