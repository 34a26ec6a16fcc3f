package repository

import (
	"context"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
)

// AccountStore граница хранилища аккаунтов и подписок.
// Каждая мутация атомарна относительно одной строки аккаунта/подписки и
// выполняется условно относительно текущего сохраненного состояния:
// bool=false означает, что условие не выполнено и состояние не изменилось.
type AccountStore interface {
	// FindAccountByExternalID возвращает аккаунт вместе с подпиской (ErrNotFound, если нет)
	FindAccountByExternalID(ctx context.Context, accountID string) (*domain.Account, error)

	// FindAccountBySubscriptionID ищет аккаунт, текущая подписка которого имеет указанный ID
	FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Account, error)

	// UpsertAccount создает аккаунт с бесплатным уровнем, если его еще нет
	UpsertAccount(ctx context.Context, accountID string, usage domain.Usage) (*domain.Account, error)

	// CreateSubscriptionForAccount создает подписку. ErrDuplicate, если у аккаунта
	// уже есть подписка или ID подписки занят, ErrNotFound, если нет аккаунта.
	CreateSubscriptionForAccount(ctx context.Context, sub domain.Subscription) error

	// UpgradeAccountToPremium включает премиум, если подписка на месте, а флаг еще не выставлен
	UpgradeAccountToPremium(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error)

	// UpdateSubscriptionDates сдвигает даты оплаты только вперед и снимает просрочку,
	// если оплата не старше просрочки
	UpdateSubscriptionDates(ctx context.Context, subscriptionID string, paidAt, nextDueAt time.Time) (bool, error)

	// MarkSubscriptionPastDue помечает подписку просроченной, если неуспешная оплата
	// новее последней успешной. Более поздняя неуспешная попытка сдвигает начало просрочки.
	MarkSubscriptionPastDue(ctx context.Context, subscriptionID string, failedAt time.Time) (bool, error)

	// DeleteSubscriptionAndDowngrade удаляет подписку и переводит аккаунт на бесплатный
	// уровень одной атомарной операцией
	DeleteSubscriptionAndDowngrade(ctx context.Context, accountID, subscriptionID string, usage domain.Usage) (bool, error)
}

// WebhookEventRepository журнал входящих событий провайдера
type WebhookEventRepository interface {
	// GetByExternalID возвращает запись по ID события у провайдера
	GetByExternalID(ctx context.Context, externalID string) (domain.WebhookEvent, error)

	// SaveResult создает или обновляет запись, увеличивая счетчик попыток
	SaveResult(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, error)

	// List возвращает записи журнала, новые в начале
	List(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error)
}

// paymentAdvances проверяет, изменит ли оплата состояние подписки
func paymentAdvances(sub *domain.Subscription, paidAt, nextDueAt time.Time) bool {
	return sub.LastPaymentAt.Before(paidAt) ||
		sub.NextDueAt.Before(nextDueAt) ||
		clearsPastDue(sub, paidAt)
}

// clearsPastDue оплата снимает просрочку, только если она не старше неуспешной попытки
func clearsPastDue(sub *domain.Subscription, paidAt time.Time) bool {
	return sub.PastDue && sub.PastDueSince != nil && !sub.PastDueSince.After(paidAt)
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
