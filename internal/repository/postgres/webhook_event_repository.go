package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// WebhookEventRepository журнал событий провайдера в PostgreSQL
type WebhookEventRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewWebhookEventRepository создает новый экземпляр журнала
func NewWebhookEventRepository(db *sqlx.DB, log *logger.Logger) *WebhookEventRepository {
	return &WebhookEventRepository{
		db:  db,
		log: log,
	}
}

const webhookEventColumns = `id, external_id, type, provider, status, outcome, account_id,
	attempt_count, last_error, processed_at, created_at, updated_at`

// GetByExternalID возвращает запись журнала по ID события в Stripe
func (r *WebhookEventRepository) GetByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE external_id = $1`

	err := r.db.GetContext(ctx, &event, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookEvent{}, domain.NewNotFoundError("webhook_event", externalID)
		}
		r.log.Errorw("Failed to get webhook event from DB", "error", err, "externalID", externalID)
		return domain.WebhookEvent{}, fmt.Errorf("repository: failed to get webhook event: %w", err)
	}
	return event, nil
}

// SaveResult записывает результат очередной попытки обработки
func (r *WebhookEventRepository) SaveResult(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	query := `
		INSERT INTO webhook_events (
			id, external_id, type, provider, status, outcome, account_id,
			attempt_count, last_error, processed_at, created_at, updated_at
		) VALUES (
			:id, :external_id, :type, :provider, :status, :outcome, :account_id,
			1, :last_error, :processed_at, now(), now()
		)
		ON CONFLICT (external_id) DO UPDATE SET
			status = EXCLUDED.status,
			outcome = EXCLUDED.outcome,
			account_id = EXCLUDED.account_id,
			attempt_count = webhook_events.attempt_count + 1,
			last_error = EXCLUDED.last_error,
			processed_at = EXCLUDED.processed_at,
			updated_at = now()
		RETURNING ` + webhookEventColumns

	rows, err := r.db.NamedQueryContext(ctx, query, event)
	if err != nil {
		r.log.Errorw("Failed to save webhook event", "error", err, "externalID", event.ExternalID)
		return domain.WebhookEvent{}, fmt.Errorf("repository: failed to save webhook event: %w", err)
	}
	defer rows.Close()

	var saved domain.WebhookEvent
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.WebhookEvent{}, fmt.Errorf("repository: failed to save webhook event: %w", err)
		}
		return domain.WebhookEvent{}, fmt.Errorf("repository: webhook event %s was not returned", event.ExternalID)
	}
	if err := rows.StructScan(&saved); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("repository: failed to scan webhook event: %w", err)
	}

	r.log.Debugw("Webhook event saved", "externalID", saved.ExternalID, "status", saved.Status, "attempts", saved.AttemptCount)
	return saved, nil
}

// List возвращает записи журнала, новые в начале
func (r *WebhookEventRepository) List(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error) {
	events := []domain.WebhookEvent{}
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	if err := r.db.SelectContext(ctx, &events, query, limit, offset); err != nil {
		r.log.Errorw("Failed to list webhook events", "error", err)
		return nil, fmt.Errorf("repository: failed to list webhook events: %w", err)
	}
	return events, nil
}
