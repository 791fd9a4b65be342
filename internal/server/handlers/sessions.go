package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/application/payment"
	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/currency"
)

type SessionHandler struct {
	paymentSvc payment.IPaymentService
	utils      *currency.CurrencyUtils
	logger     zerolog.Logger
}

type UpdateAmountRequest struct {
	FiatAmount decimal.Decimal `json:"fiat_amount"`
}

func NewSessionHandler(paymentSvc payment.IPaymentService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		paymentSvc: paymentSvc,
		utils:      currency.NewCurrencyUtils(),
		logger:     logger.With().Str("component", "session_handler").Logger(),
	}
}

// POST /v1/sessions
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req payment.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	snapshot, err := h.paymentSvc.OpenSession(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, domain.ApiResponse{
		Message: "payment session opened",
		Success: true,
		Status:  http.StatusCreated,
		Data:    snapshot,
	})
}

// PUT /v1/sessions/:id/amount
func (h *SessionHandler) UpdateAmount(c *gin.Context) {
	var req UpdateAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	snapshot, err := h.paymentSvc.SetFiatAmount(c.Request.Context(), c.Param("id"), req.FiatAmount)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, "fiat amount updated", snapshot)
}

// POST /v1/sessions/:id/pay
func (h *SessionHandler) Pay(c *gin.Context) {
	sessionID := c.Param("id")
	snapshot, err := h.paymentSvc.Pay(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Payment descriptor request failed")
		var data interface{}
		if snapshot.SessionID != "" {
			data = snapshot
		}
		h.fail(c, err, data)
		return
	}
	h.ok(c, "payment descriptor issued", snapshot)
}

// GET /v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	snapshot, err := h.paymentSvc.GetSession(c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, "payment session", snapshot)
}

// DELETE /v1/sessions/:id
func (h *SessionHandler) CloseSession(c *gin.Context) {
	if err := h.paymentSvc.CloseSession(c.Param("id")); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, "payment session closed", nil)
}

// GET /v1/packages
func (h *SessionHandler) ListPackages(c *gin.Context) {
	h.ok(c, "packages", h.paymentSvc.Packages())
}

// GET /v1/quote?fiat_amount=
func (h *SessionHandler) Quote(c *gin.Context) {
	raw := c.Query("fiat_amount")
	if raw == "" {
		h.badRequest(c, "fiat_amount query parameter is required")
		return
	}
	amount, err := h.utils.ParseAmount(raw)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	quote, err := h.paymentSvc.Quote(amount)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, "quote", quote)
}

func (h *SessionHandler) ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, domain.ApiResponse{
		Message: message,
		Success: true,
		Status:  http.StatusOK,
		Data:    data,
	})
}

func (h *SessionHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, domain.ApiResponse{
		Message: message,
		Success: false,
		Status:  http.StatusBadRequest,
		Code:    "invalid_request",
	})
}

func (h *SessionHandler) fail(c *gin.Context, err error, data interface{}) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled payment error")
	}
	c.JSON(status, domain.ApiResponse{
		Message: err.Error(),
		Success: false,
		Status:  status,
		Code:    code,
		Data:    data,
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrUnknownPackage):
		return http.StatusNotFound, "unknown_package"
	case errors.Is(err, domain.ErrPricingLocked):
		return http.StatusConflict, "pricing_locked"
	case errors.Is(err, domain.ErrPaymentInProgress):
		return http.StatusConflict, "payment_in_progress"
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, domain.ErrAmountBelowMinimum):
		return http.StatusBadRequest, "amount_below_minimum"
	case errors.Is(err, domain.ErrDescriptorCreation):
		return http.StatusBadGateway, "descriptor_creation_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
