package kafka

import (
	"context"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
)

// TopicEntitlementChanged топик изменений уровня доступа
const TopicEntitlementChanged = "entitlement_changed"

// EntitlementChanged сообщение об изменении доступа аккаунта.
// Публикуется только после того, как изменение сохранено.
type EntitlementChanged struct {
	EventID        string                  `json:"event_id"`
	AccountID      string                  `json:"account_id"`
	SubscriptionID string                  `json:"subscription_id"`
	Transition     domain.EventKind        `json:"transition"`
	State          domain.EntitlementState `json:"state"`
	IsPremium      bool                    `json:"is_premium"`
	UsageTier      domain.UsageTier        `json:"usage_tier"`
	OccurredAt     time.Time               `json:"occurred_at"`
}

// Publisher публикует изменения доступа
type Publisher interface {
	PublishEntitlementChanged(ctx context.Context, msg EntitlementChanged) error
	Close() error
}

// NopPublisher используется, когда Kafka не настроена
type NopPublisher struct{}

func (NopPublisher) PublishEntitlementChanged(context.Context, EntitlementChanged) error { return nil }
func (NopPublisher) Close() error                                                        { return nil }
