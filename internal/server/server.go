package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/w1nex5372/ernioCasino-sub000/internal/application/payment"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server/handlers"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server/middleware"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server/websocket"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	PaymentSvc payment.IPaymentService
	Cfg        *config.Config
	Logger     zerolog.Logger
	Router     *gin.Engine
	httpServer *http.Server
	WsHub      *websocket.WsHub
	Checks     []handlers.ReadinessCheck
}

func New(cfg *config.Config, paymentSvc payment.IPaymentService, logger zerolog.Logger, wsHub *websocket.WsHub, checks ...handlers.ReadinessCheck) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	return &Server{
		Cfg:        cfg,
		PaymentSvc: paymentSvc,
		Logger:     logger,
		Router:     router,
		WsHub:      wsHub,
		Checks:     checks,
	}
}

func (s *Server) SetupRouter() {
	middleware.NewMiddleware(s.Logger, s.Cfg.Server.AllowedOrigins...).SetupMiddleware(s.Router)

	handler := handlers.New(
		s.PaymentSvc,
		s.Logger,
		s.Cfg,
		s.WsHub,
		s.Checks...,
	)
	handler.SetupHandlers(s.Router)
}

// Run serves HTTP until ctx is cancelled, then shuts the listener down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.SetupRouter()

	s.httpServer = &http.Server{
		Addr:        s.Cfg.Server.Host + ":" + s.Cfg.Server.Port,
		Handler:     s.Router,
		ReadTimeout: 20 * time.Second,
		// No WriteTimeout: WebSocket connections are long-lived.
	}

	errCh := make(chan error, 1)
	s.Logger.Info().Msgf("Starting server on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to start server")
		}
		return err
	case <-ctx.Done():
	}

	s.Logger.Info().Msg("Shutdown signal received, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}

	s.Logger.Info().Msg("Server exited gracefully")
	return nil
}
