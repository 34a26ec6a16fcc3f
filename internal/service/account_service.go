package service

import (
	"context"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/internal/repository"
)

// AccountView аккаунт вместе с выведенным состоянием доступа
type AccountView struct {
	*domain.Account
	State domain.EntitlementState `json:"state"`
}

// AccountService чтение состояния аккаунтов для административного API
type AccountService struct {
	store repository.AccountStore
}

// NewAccountService создает сервис чтения аккаунтов
func NewAccountService(store repository.AccountStore) *AccountService {
	return &AccountService{store: store}
}

// GetAccount возвращает аккаунт по внешнему ID
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (AccountView, error) {
	acc, err := s.store.FindAccountByExternalID(ctx, accountID)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{Account: acc, State: acc.State()}, nil
}
