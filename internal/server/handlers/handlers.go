package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/w1nex5372/ernioCasino-sub000/internal/application/payment"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server/websocket"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
)

type Handlers struct {
	PaymentSvc payment.IPaymentService
	Logger     zerolog.Logger
	Config     *config.Config
	WsHub      *websocket.WsHub
	Checks     []ReadinessCheck
}

func New(paymentSvc payment.IPaymentService, logger zerolog.Logger, config *config.Config, wsHub *websocket.WsHub, checks ...ReadinessCheck) *Handlers {
	return &Handlers{
		PaymentSvc: paymentSvc,
		Logger:     logger,
		Config:     config,
		WsHub:      wsHub,
		Checks:     checks,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	sessionHandler := NewSessionHandler(h.PaymentSvc, h.Logger)
	statusHandler := NewSessionStatusHandler(h.WsHub, h.Config.WebSocket, h.Logger)
	healthHandler := NewHealthHandler(h.Checks...)

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// WebSocket endpoint
	router.GET("/status", statusHandler.HandleWebSocket)

	v1 := router.Group("/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", sessionHandler.OpenSession)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.PUT("/:id/amount", sessionHandler.UpdateAmount)
			sessions.POST("/:id/pay", sessionHandler.Pay)
			sessions.DELETE("/:id", sessionHandler.CloseSession)
		}

		v1.GET("/packages", sessionHandler.ListPackages)
		v1.GET("/quote", sessionHandler.Quote)
	}
}
