package domain

import "time"

// UsageTier уровень использования аккаунта
type UsageTier string

const (
	UsageTierFree    UsageTier = "FREE"
	UsageTierPremium UsageTier = "PREMIUM"
)

// EntitlementState состояние аккаунта в машине состояний сверки.
// PAST_DUE не хранится отдельно, а выводится из флага подписки.
type EntitlementState string

const (
	StateFree           EntitlementState = "FREE"
	StatePremiumActive  EntitlementState = "PREMIUM_ACTIVE"
	StatePremiumPastDue EntitlementState = "PREMIUM_PAST_DUE"
)

// Usage пара tier/allowance, которая применяется при смене уровня.
// Счетчик использования сбрасывается в Allowance.
type Usage struct {
	Tier      UsageTier `json:"tier"`
	Allowance int       `json:"allowance"`
}

// UsagePolicy значения лимитов для каждого уровня
type UsagePolicy struct {
	FreeAllowance    int
	PremiumAllowance int
}

// Free возвращает параметры бесплатного уровня
func (p UsagePolicy) Free() Usage {
	return Usage{Tier: UsageTierFree, Allowance: p.FreeAllowance}
}

// Premium возвращает параметры премиум уровня
func (p UsagePolicy) Premium() Usage {
	return Usage{Tier: UsageTierPremium, Allowance: p.PremiumAllowance}
}

// Account представляет конечного пользователя.
// AccountID это идентификатор во внешнем чат-сервисе (Discord), неизменяемый.
type Account struct {
	AccountID      string        `json:"account_id"`
	IsPremium      bool          `json:"is_premium"`
	UsageTier      UsageTier     `json:"usage_tier"`
	UsageAllowance int           `json:"usage_allowance"`
	UsageCounter   int           `json:"usage_counter"`
	Subscription   *Subscription `json:"subscription,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// State выводит состояние машины состояний из сохраненных полей
func (a *Account) State() EntitlementState {
	if a == nil || a.Subscription == nil {
		return StateFree
	}
	if a.Subscription.PastDue {
		return StatePremiumPastDue
	}
	return StatePremiumActive
}

// HasSubscription проверяет, что у аккаунта есть подписка с указанным ID
func (a *Account) HasSubscription(subscriptionID string) bool {
	return a != nil && a.Subscription != nil && a.Subscription.SubscriptionID == subscriptionID
}

// Subscription активная связь с биллингом. Принадлежит ровно одному аккаунту.
type Subscription struct {
	SubscriptionID    string     `json:"subscription_id"` // ID подписки в Stripe
	AccountID         string     `json:"account_id"`
	BillingEmail      string     `json:"billing_email,omitempty"`
	PaymentMethodHint string     `json:"payment_method_hint,omitempty"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	FirstPaymentAt    time.Time  `json:"first_payment_at"`
	LastPaymentAt     time.Time  `json:"last_payment_at"`
	NextDueAt         time.Time  `json:"next_due_at"`
	PastDue           bool       `json:"past_due"`
	PastDueSince      *time.Time `json:"past_due_since,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Profile запись внешнего каталога (пользователь Discord)
type Profile struct {
	ExternalID string `json:"external_id"`
	Username   string `json:"username"`
	Bot        bool   `json:"bot"`
}
