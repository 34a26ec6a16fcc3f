package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/premium-billing-reconciler/internal/integration/stripe"
	"github.com/Dhoini/premium-billing-reconciler/internal/service"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/Dhoini/premium-billing-reconciler/pkg/res"
	"github.com/gin-gonic/gin"
)

// MaxWebhookBodyBytes предельный размер тела вебхука
const MaxWebhookBodyBytes = 65536

// WebhookHandler обработчик для вебхуков Stripe
type WebhookHandler struct {
	verifier *stripe.Verifier
	service  service.WebhookService
	log      *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(verifier *stripe.Verifier, webhookService service.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		service:  webhookService,
		log:      log,
	}
}

// HandleStripeWebhook проверяет подпись и передает событие на сверку.
// Статус ответа управляет повторной доставкой: 200 подтверждает событие,
// 503 просит провайдера повторить.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Request body too large"}, http.StatusRequestEntityTooLarge, h.log)
			return
		}
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Failed to read webhook body"}, http.StatusBadRequest, h.log)
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader(stripe.SignatureHeader))
	if err != nil {
		h.log.Warnw("Webhook signature verification failed", "error", err, "clientIP", c.ClientIP())
		c.JSON(http.StatusBadRequest, res.ErrorResponse{Error: "Failed to verify webhook signature"})
		return
	}

	outcome := h.service.ProcessEvent(c.Request.Context(), event)

	ack := res.WebhookAck{
		Received: true,
		EventID:  event.ID,
		Outcome:  outcome.Label(),
		Reason:   outcome.Reason,
	}
	if !outcome.Acknowledge() {
		ack.Received = false
		c.JSON(http.StatusServiceUnavailable, ack)
		return
	}
	c.JSON(http.StatusOK, ack)
}
