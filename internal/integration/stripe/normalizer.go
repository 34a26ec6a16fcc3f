package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/Dhoini/premium-billing-reconciler/pkg/req"
	"github.com/stripe/stripe-go/v78"
)

// Типы событий Stripe, которые переводятся в доменные события
const (
	EventCheckoutSessionCompleted    = "checkout.session.completed"
	EventInvoicePaid                 = "invoice.paid"
	EventInvoicePaymentFailed        = "invoice.payment_failed"
	EventCustomerSubscriptionDeleted = "customer.subscription.deleted"
)

// IdentityFieldKey ключ поля оформления заказа с ID пользователя Discord
const IdentityFieldKey = "discordid"

// ErrEventIgnored событие не относится к жизненному циклу подписки
var ErrEventIgnored = errors.New("event ignored")

// Normalizer переводит проверенное событие Stripe в доменное событие
type Normalizer struct {
	log *logger.Logger
}

// NewNormalizer создает новый нормализатор
func NewNormalizer(log *logger.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize возвращает доменное событие, ErrEventIgnored для прочих типов
// или ошибку domain.ErrMalformedEvent, если поля имеют неверный формат.
func (n *Normalizer) Normalize(event stripe.Event) (domain.Event, error) {
	eventType := string(event.Type)
	switch eventType {
	case EventCheckoutSessionCompleted, EventInvoicePaid, EventInvoicePaymentFailed, EventCustomerSubscriptionDeleted:
	default:
		return nil, fmt.Errorf("%w: %s", ErrEventIgnored, eventType)
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, domain.NewMalformedEventError(event.ID, eventType, "data.object", errors.New("missing object"))
	}

	envelope := domain.Envelope{EventID: event.ID}
	if event.Created > 0 {
		envelope.Created = time.Unix(event.Created, 0).UTC()
	}

	var (
		out domain.Event
		err error
	)
	switch eventType {
	case EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &session); err == nil {
			out = checkoutCompleted(envelope, &session)
		}
	case EventInvoicePaid, EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err = json.Unmarshal(event.Data.Raw, &inv); err == nil {
			if inv.Subscription == nil || inv.Subscription.ID == "" {
				return nil, fmt.Errorf("%w: invoice %s has no subscription", ErrEventIgnored, inv.ID)
			}
			out = invoiceEvent(eventType, envelope, &inv)
		}
	case EventCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err = json.Unmarshal(event.Data.Raw, &sub); err == nil {
			out = domain.SubscriptionCancelled{Envelope: envelope, SubscriptionID: sub.ID}
		}
	}
	if err != nil {
		return nil, domain.NewMalformedEventError(event.ID, eventType, fieldOf(err), err)
	}

	if err := req.IsValid(out); err != nil {
		return nil, domain.NewMalformedEventError(event.ID, eventType, req.FirstInvalidField(err), err)
	}

	n.log.Debugw("Event normalized", "eventID", event.ID, "type", eventType, "kind", out.Kind())
	return out, nil
}

func checkoutCompleted(envelope domain.Envelope, session *stripe.CheckoutSession) domain.CheckoutCompleted {
	out := domain.CheckoutCompleted{
		Envelope:          envelope,
		CheckoutSessionID: session.ID,
		BillingEmail:      session.CustomerEmail,
		Amount:            session.AmountTotal,
		Currency:          strings.ToLower(string(session.Currency)),
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	// Разовая оплата без подписки
	if out.SubscriptionID == "" {
		out.SubscriptionID = session.ID
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		out.BillingEmail = session.CustomerDetails.Email
	}
	if len(session.PaymentMethodTypes) > 0 {
		out.PaymentMethodHint = session.PaymentMethodTypes[0]
	}

	for _, field := range session.CustomFields {
		if field == nil || !strings.EqualFold(field.Key, IdentityFieldKey) {
			continue
		}
		if value, ok := customFieldValue(field); ok {
			out.DiscordID = &value
		}
		break
	}
	return out
}

func invoiceEvent(eventType string, envelope domain.Envelope, inv *stripe.Invoice) domain.Event {
	if eventType == EventInvoicePaymentFailed {
		return domain.InvoicePaymentFailed{
			Envelope:       envelope,
			InvoiceID:      inv.ID,
			SubscriptionID: inv.Subscription.ID,
			CustomerEmail:  inv.CustomerEmail,
			AmountDue:      inv.AmountDue,
			Currency:       strings.ToLower(string(inv.Currency)),
		}
	}
	return domain.InvoicePaid{
		Envelope:       envelope,
		InvoiceID:      inv.ID,
		SubscriptionID: inv.Subscription.ID,
		CustomerEmail:  inv.CustomerEmail,
		AmountDue:      inv.AmountDue,
		Currency:       strings.ToLower(string(inv.Currency)),
	}
}

// customFieldValue возвращает заполненное значение поля независимо от его типа
func customFieldValue(field *stripe.CheckoutSessionCustomField) (string, bool) {
	var values []string
	if field.Text != nil {
		values = append(values, field.Text.Value)
	}
	if field.Numeric != nil {
		values = append(values, field.Numeric.Value)
	}
	if field.Dropdown != nil {
		values = append(values, field.Dropdown.Value)
	}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}

func fieldOf(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	return ""
}
