package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/google/uuid"
)

// InMemoryWebhookEventRepository журнал событий в памяти
type InMemoryWebhookEventRepository struct {
	events map[string]domain.WebhookEvent
	mutex  sync.RWMutex
}

// NewInMemoryWebhookEventRepository создает новый журнал в памяти
func NewInMemoryWebhookEventRepository() *InMemoryWebhookEventRepository {
	return &InMemoryWebhookEventRepository{
		events: make(map[string]domain.WebhookEvent),
	}
}

func (r *InMemoryWebhookEventRepository) GetByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	event, ok := r.events[externalID]
	if !ok {
		return domain.WebhookEvent{}, domain.NewNotFoundError("webhook_event", externalID)
	}
	return event, nil
}

func (r *InMemoryWebhookEventRepository) SaveResult(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	stored, ok := r.events[event.ExternalID]
	if !ok {
		stored = domain.WebhookEvent{
			ID:         uuid.New(),
			ExternalID: event.ExternalID,
			CreatedAt:  now,
		}
	}
	stored.Type = event.Type
	stored.Provider = event.Provider
	stored.Status = event.Status
	stored.Outcome = event.Outcome
	stored.AccountID = event.AccountID
	stored.LastError = event.LastError
	stored.ProcessedAt = event.ProcessedAt
	stored.AttemptCount++
	stored.UpdatedAt = now

	r.events[event.ExternalID] = stored
	return stored, nil
}

func (r *InMemoryWebhookEventRepository) List(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	events := make([]domain.WebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	if offset >= len(events) {
		return []domain.WebhookEvent{}, nil
	}
	events = events[offset:]
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}
