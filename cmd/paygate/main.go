package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/w1nex5372/ernioCasino-sub000/internal/application/payment"
	"github.com/w1nex5372/ernioCasino-sub000/internal/infrastructure/database"
	"github.com/w1nex5372/ernioCasino-sub000/internal/infrastructure/http/clients"
	"github.com/w1nex5372/ernioCasino-sub000/internal/repositories/preferencerepo"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server/handlers"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server/websocket"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewWithConfig(cfg.Logger)

	db, err := database.New(&cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open preference cache")
	}
	defer db.ShutDown()

	preferenceRepo := preferencerepo.New(db, log)
	purchaseClient := clients.NewPurchaseAPIClient(cfg.Backend, log)
	wsHub := websocket.NewWsHub(log)

	paymentService := payment.New(
		cfg.Payment,
		cfg.Packages,
		purchaseClient,
		preferenceRepo,
		wsHub,
		log,
	)
	defer paymentService.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, paymentService, log, wsHub,
		handlers.ReadinessCheck{Name: "preference_cache", Check: db.Ping},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return wsHub.Run(gctx) })
	g.Go(func() error { return paymentService.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Gateway stopped with error")
		return
	}
	log.Info().Msg("Gateway stopped")
}
