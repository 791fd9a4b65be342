package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/devbackend"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logCfg := cfg.Logger
	logCfg.Service = "devbackend"
	log = logger.NewWithConfig(logCfg)

	store := devbackend.NewStore(decimal.NewFromFloat(cfg.DevBackend.InitialRate), cfg.Payment.TokensPerFiat)
	backend := devbackend.New(store, cfg.Backend.APIKey, log)

	httpServer := &http.Server{
		Addr:         cfg.DevBackend.Addr,
		Handler:      backend.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Starting dev purchase backend")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Dev backend failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Dev backend forced to shutdown")
	}
	log.Info().Msg("Dev backend stopped")
}
