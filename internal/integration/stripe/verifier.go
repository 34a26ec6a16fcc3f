package stripe

import (
	"fmt"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// SignatureHeader заголовок с подписью Stripe
const SignatureHeader = "Stripe-Signature"

// Verifier проверяет подпись вебхука и возвращает типизированное событие
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier создает проверку подписи с заданным секретом
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Verify проверяет подпись. Любая ошибка оборачивает domain.ErrWebhookValidationFailed.
func (v *Verifier) Verify(payload []byte, signature string) (stripe.Event, error) {
	if signature == "" {
		return stripe.Event{}, fmt.Errorf("%w: no %s header", domain.ErrWebhookValidationFailed, SignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", domain.ErrWebhookValidationFailed, err)
	}
	return event, nil
}
