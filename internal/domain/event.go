package domain

import "time"

// EventKind вид доменного события
type EventKind string

const (
	EventKindCheckoutCompleted     EventKind = "checkout_completed"
	EventKindInvoicePaid           EventKind = "invoice_paid"
	EventKindInvoicePaymentFailed  EventKind = "invoice_payment_failed"
	EventKindSubscriptionCancelled EventKind = "subscription_cancelled"
)

// Event закрытое множество доменных событий биллинга.
// Реализуется только типами этого пакета.
type Event interface {
	Kind() EventKind
	// ProviderEventID ID события у провайдера
	ProviderEventID() string
	// OccurredAt время события у провайдера, используется как "сейчас" перехода
	OccurredAt() time.Time
	// BillingSubscriptionID ключ корреляции подписки
	BillingSubscriptionID() string

	sealed()
}

// Envelope общие поля всех событий
type Envelope struct {
	EventID string    `json:"event_id"`
	Created time.Time `json:"created"`
}

func (e Envelope) ProviderEventID() string { return e.EventID }
func (e Envelope) OccurredAt() time.Time   { return e.Created }
func (Envelope) sealed()                   {}

// CheckoutCompleted завершение оформления подписки.
// DiscordID nil означает, что подсказка идентичности не передана.
type CheckoutCompleted struct {
	Envelope
	DiscordID         *string `json:"discord_id,omitempty"`
	CheckoutSessionID string  `json:"checkout_session_id" validate:"required"`
	SubscriptionID    string  `json:"subscription_id" validate:"required"`
	BillingEmail      string  `json:"billing_email,omitempty"`
	Amount            int64   `json:"amount" validate:"gte=0"`
	Currency          string  `json:"currency" validate:"omitempty,len=3"`
	PaymentMethodHint string  `json:"payment_method_hint,omitempty"`
}

func (CheckoutCompleted) Kind() EventKind                 { return EventKindCheckoutCompleted }
func (e CheckoutCompleted) BillingSubscriptionID() string { return e.SubscriptionID }

// InvoicePaid успешная оплата очередного счета
type InvoicePaid struct {
	Envelope
	InvoiceID      string `json:"invoice_id" validate:"required"`
	SubscriptionID string `json:"subscription_id" validate:"required"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	AmountDue      int64  `json:"amount_due" validate:"gte=0"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
}

func (InvoicePaid) Kind() EventKind                 { return EventKindInvoicePaid }
func (e InvoicePaid) BillingSubscriptionID() string { return e.SubscriptionID }

// InvoicePaymentFailed неуспешная оплата счета
type InvoicePaymentFailed struct {
	Envelope
	InvoiceID      string `json:"invoice_id" validate:"required"`
	SubscriptionID string `json:"subscription_id" validate:"required"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	AmountDue      int64  `json:"amount_due" validate:"gte=0"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
}

func (InvoicePaymentFailed) Kind() EventKind                 { return EventKindInvoicePaymentFailed }
func (e InvoicePaymentFailed) BillingSubscriptionID() string { return e.SubscriptionID }

// SubscriptionCancelled подписка удалена на стороне провайдера
type SubscriptionCancelled struct {
	Envelope
	SubscriptionID string `json:"subscription_id" validate:"required"`
}

func (SubscriptionCancelled) Kind() EventKind                 { return EventKindSubscriptionCancelled }
func (e SubscriptionCancelled) BillingSubscriptionID() string { return e.SubscriptionID }
