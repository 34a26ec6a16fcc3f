// Package directory ищет пользователей чат-платформы по внешнему ID.
// Каталог только читается: аккаунты по нему не создаются.
package directory

import (
	"context"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
)

// Directory внешний каталог пользователей.
// Отсутствие пользователя возвращается как domain.ErrNotFound.
type Directory interface {
	LookupByExternalID(ctx context.Context, id string) (domain.Profile, error)
}
