package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/internal/domain/interfaces"
	"github.com/w1nex5372/ernioCasino-sub000/internal/repositories/preferencerepo"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
)

type paymentService struct {
	cfg      config.PaymentConfig
	packages map[string]domain.Package
	api      interfaces.PurchaseAPI
	prefs    preferencerepo.IPreferenceRepository
	notifier interfaces.SessionNotifier
	clock    clock.Clock
	logger   zerolog.Logger
	pricing  *PriceRecalculator
	minFiat  decimal.Decimal

	mu       sync.RWMutex
	sessions map[string]*Controller
}

type Option func(*paymentService)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *paymentService) {
		s.clock = clk
	}
}

func New(
	cfg config.PaymentConfig,
	packages []config.PackageConfig,
	api interfaces.PurchaseAPI,
	prefs preferencerepo.IPreferenceRepository,
	notifier interfaces.SessionNotifier,
	logger zerolog.Logger,
	opts ...Option,
) IPaymentService {
	s := &paymentService{
		cfg:      cfg,
		packages: make(map[string]domain.Package, len(packages)),
		api:      api,
		prefs:    prefs,
		notifier: notifier,
		clock:    clock.New(),
		logger:   logger.With().Str("component", "payment_service").Logger(),
		minFiat:  decimal.NewFromFloat(cfg.MinFiatAmount),
		sessions: make(map[string]*Controller),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range packages {
		s.packages[p.ID] = domain.Package{
			ID:          p.ID,
			Name:        p.Name,
			FiatAmount:  decimal.NewFromFloat(p.FiatAmount),
			TokenAmount: p.TokenAmount,
		}
	}

	s.pricing = NewPriceRecalculator(
		api,
		prefs,
		s.clock,
		cfg.CryptoSymbol,
		decimal.NewFromFloat(cfg.DefaultRate),
		cfg.CacheMaxAge,
		logger,
	)

	return s
}

func (s *paymentService) OpenSession(ctx context.Context, req OpenSessionRequest) (domain.Snapshot, error) {
	if req.UserID == "" {
		return domain.Snapshot{}, errors.New("user id is required")
	}

	purchase := domain.PurchaseRequest{
		UserID:     req.UserID,
		FiatAmount: req.FiatAmount,
	}
	if req.PackageID != "" {
		pkg, ok := s.packages[req.PackageID]
		if !ok {
			return domain.Snapshot{}, fmt.Errorf("%w: %s", domain.ErrUnknownPackage, req.PackageID)
		}
		purchase.IsFixedPricePackage = true
		purchase.PackageID = pkg.ID
		purchase.FiatAmount = pkg.FiatAmount
		purchase.TokenAmount = pkg.TokenAmount
	}

	sessionID := uuid.NewString()
	controller, err := NewController(ControllerOptions{
		SessionID:   sessionID,
		Request:     purchase,
		Config:      s.cfg,
		API:         s.api,
		Preferences: s.prefs,
		Notifier:    s.notifier,
		OnComplete:  s.onComplete,
		Clock:       s.clock,
		Logger:      s.logger,
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	if err := controller.Open(ctx); err != nil {
		controller.Close()
		return domain.Snapshot{}, fmt.Errorf("failed to open session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sessionID] = controller
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", sessionID).
		Str("user_id", req.UserID).
		Str("kind", string(purchase.Kind())).
		Msg("Session opened")

	return controller.Snapshot(), nil
}

func (s *paymentService) SetFiatAmount(ctx context.Context, sessionID string, amount decimal.Decimal) (domain.Snapshot, error) {
	controller, err := s.get(sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := controller.SetFiatAmount(ctx, amount); err != nil {
		return domain.Snapshot{}, err
	}
	return controller.Snapshot(), nil
}

// Pay returns the snapshot alongside the error so callers can show the failure notice.
func (s *paymentService) Pay(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	controller, err := s.get(sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	_, err = controller.Pay(ctx)
	return controller.Snapshot(), err
}

func (s *paymentService) GetSession(sessionID string) (domain.Snapshot, error) {
	controller, err := s.get(sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return controller.Snapshot(), nil
}

// CloseSession is idempotent: closing a closed or already reaped session succeeds.
func (s *paymentService) CloseSession(sessionID string) error {
	controller, err := s.get(sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	controller.Close()
	return nil
}

func (s *paymentService) Packages() []domain.Package {
	packages := make([]domain.Package, 0, len(s.packages))
	for _, p := range s.packages {
		packages = append(packages, p)
	}
	sort.Slice(packages, func(i, j int) bool {
		return packages[i].FiatAmount.LessThan(packages[j].FiatAmount)
	})
	return packages
}

func (s *paymentService) Quote(fiat decimal.Decimal) (domain.Quote, error) {
	if fiat.LessThan(s.minFiat) {
		return domain.Quote{}, fmt.Errorf("%w: %s < %s", domain.ErrAmountBelowMinimum, fiat, s.minFiat)
	}
	return s.pricing.Quote(fiat), nil
}

func (s *paymentService) Run(ctx context.Context) error {
	s.logger.Info().Msg("Starting payment service")

	s.pricing.Refresh(ctx)

	reap := s.clock.Ticker(s.cfg.ReapInterval)
	defer reap.Stop()
	refresh := s.clock.Ticker(s.cfg.RateRefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Payment service stopped")
			return ctx.Err()
		case <-reap.C:
			s.reap()
		case <-refresh.C:
			s.pricing.Refresh(ctx)
		}
	}
}

// Shutdown closes every session.
func (s *paymentService) Shutdown() {
	s.mu.RLock()
	controllers := make([]*Controller, 0, len(s.sessions))
	for _, c := range s.sessions {
		controllers = append(controllers, c)
	}
	s.mu.RUnlock()

	for _, c := range controllers {
		c.Close()
	}
	s.logger.Info().Int("sessions", len(controllers)).Msg("All sessions closed")
}

// reap drops closed sessions whose goroutines exited and closes idle sessions that never
// got a descriptor once the countdown window passed. Terminal sessions close themselves.
func (s *paymentService) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.sessions {
		if c.Closed() {
			select {
			case <-c.Done():
				delete(s.sessions, id)
				removed++
			default:
			}
			continue
		}

		snap := c.Snapshot()
		if snap.Phase == domain.PhaseIdle && s.clock.Since(snap.UpdatedAt) >= s.cfg.Countdown {
			c.Close()
		}
	}

	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Int("remaining", len(s.sessions)).Msg("Reaped sessions")
	}
}

func (s *paymentService) get(sessionID string) (*Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	controller, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return controller, nil
}

func (s *paymentService) onComplete(completion domain.Completion) {
	s.logger.Info().
		Str("session_id", completion.SessionID).
		Str("user_id", completion.UserID).
		Str("kind", string(completion.Kind)).
		Str("package_id", completion.PackageID).
		Msg("Purchase completed")
}
