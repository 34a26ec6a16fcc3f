package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/internal/service"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/Dhoini/premium-billing-reconciler/pkg/res"
	"github.com/gin-gonic/gin"
)

const defaultPageSize = 50

// AdminHandler административное чтение аккаунтов и журнала событий
type AdminHandler struct {
	accounts *service.AccountService
	webhooks service.WebhookService
	log      *logger.Logger
}

// NewAdminHandler создает обработчик административного API
func NewAdminHandler(accounts *service.AccountService, webhooks service.WebhookService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		webhooks: webhooks,
		log:      log,
	}
}

type pageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// GetAccount возвращает аккаунт и его состояние доступа
func (h *AdminHandler) GetAccount(c *gin.Context) {
	accountID := c.Param("account_id")

	view, err := h.accounts.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetWebhookEvents возвращает страницу журнала событий
func (h *AdminHandler) GetWebhookEvents(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, res.ErrorResponse{Error: "Invalid pagination parameters", Details: err.Error()})
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}

	events, err := h.webhooks.GetWebhookEvents(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"limit":  q.Limit,
		"offset": q.Offset,
	})
}

// GetWebhookEvent возвращает запись журнала по ID события Stripe
func (h *AdminHandler) GetWebhookEvent(c *gin.Context) {
	event, err := h.webhooks.GetWebhookEventByExternalID(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *AdminHandler) writeError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, res.ErrorResponse{Error: err.Error(), ErrorCode: http.StatusNotFound})
		return
	}
	h.log.Errorw("Admin request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, res.ErrorResponse{Error: "Internal server error", ErrorCode: http.StatusInternalServerError})
}
