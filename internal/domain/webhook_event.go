package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus статус обработки события
type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent запись журнала входящих событий провайдера
type WebhookEvent struct {
	ID           uuid.UUID          `json:"id" db:"id"`
	ExternalID   string             `json:"external_id" db:"external_id"` // ID события в Stripe
	Type         string             `json:"type" db:"type"`
	Provider     string             `json:"provider" db:"provider"`
	Status       WebhookEventStatus `json:"status" db:"status"`
	Outcome      string             `json:"outcome" db:"outcome"`
	AccountID    string             `json:"account_id,omitempty" db:"account_id"`
	AttemptCount int                `json:"attempt_count" db:"attempt_count"`
	LastError    string             `json:"last_error,omitempty" db:"last_error"`
	ProcessedAt  *time.Time         `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`
}

// IsTerminal событие уже обработано и повторно применять его не нужно
func (e WebhookEvent) IsTerminal() bool {
	return e.Status == WebhookEventStatusProcessed
}
