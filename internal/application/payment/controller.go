package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/internal/domain/interfaces"
	"github.com/w1nex5372/ernioCasino-sub000/internal/repositories/preferencerepo"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/currency"
)

const (
	descriptorErrorMessage = "Could not create a payment address. Please try again."
	timeoutMessage         = "The payment window expired. If you already sent funds, contact support."
	successMessage         = "Payment received. Your tokens have been credited."
)

type ControllerOptions struct {
	SessionID   string
	Request     domain.PurchaseRequest
	Config      config.PaymentConfig
	API         interfaces.PurchaseAPI
	Preferences preferencerepo.IPreferenceRepository
	Notifier    interfaces.SessionNotifier
	OnComplete  func(domain.Completion)
	Clock       clock.Clock
	Logger      zerolog.Logger
}

// Controller drives one payment session from idle to a terminal phase. It is the only
// owner of the phase and the only place that fires the completion callback.
type Controller struct {
	id         string
	userID     string
	cfg        config.PaymentConfig
	minFiat    decimal.Decimal
	api        interfaces.PurchaseAPI
	prefs      preferencerepo.IPreferenceRepository
	notifier   interfaces.SessionNotifier
	onComplete func(domain.Completion)
	clock      clock.Clock
	logger     zerolog.Logger
	pricing    *PriceRecalculator
	timers     *TimerSet
	utils      *currency.CurrencyUtils

	// publishMu orders pushes so a snapshot taken earlier is never delivered after a
	// later one.
	publishMu sync.Mutex

	mu            sync.Mutex
	request       domain.PurchaseRequest
	displayFiat   decimal.Decimal
	phase         domain.SessionPhase
	descriptor    *domain.PaymentDescriptor
	poller        *StatusPoller
	notice        *domain.Notice
	recalcUntil   time.Time
	updatedAt     time.Time
	opened        bool
	creating      bool
	closed        bool
	completionSet bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.API == nil {
		return nil, errors.New("purchase API is required")
	}
	if opts.Request.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	utils := currency.NewCurrencyUtils()
	minFiat := decimal.NewFromFloat(opts.Config.MinFiatAmount)

	req := opts.Request
	if req.IsFixedPricePackage {
		if req.PackageID == "" || req.TokenAmount <= 0 {
			return nil, fmt.Errorf("%w: package %q", domain.ErrUnknownPackage, req.PackageID)
		}
	} else {
		req.PackageID = ""
		if req.FiatAmount.IsPositive() && req.FiatAmount.LessThan(minFiat) {
			return nil, fmt.Errorf("%w: %s < %s", domain.ErrAmountBelowMinimum, req.FiatAmount, minFiat)
		}
		req.TokenAmount = utils.FiatToTokens(req.FiatAmount, opts.Config.TokensPerFiat)
	}

	logger := opts.Logger.With().
		Str("session_id", opts.SessionID).
		Str("user_id", req.UserID).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		id:         opts.SessionID,
		userID:     req.UserID,
		cfg:        opts.Config,
		minFiat:    minFiat,
		api:        opts.API,
		prefs:      opts.Preferences,
		notifier:   opts.Notifier,
		onComplete: opts.OnComplete,
		clock:      opts.Clock,
		logger:     logger.With().Str("component", "payment_controller").Logger(),
		pricing: NewPriceRecalculator(
			opts.API,
			opts.Preferences,
			opts.Clock,
			opts.Config.CryptoSymbol,
			decimal.NewFromFloat(opts.Config.DefaultRate),
			opts.Config.CacheMaxAge,
			logger,
		),
		timers:      NewTimerSet(opts.Clock),
		utils:       utils,
		request:     req,
		displayFiat: req.FiatAmount,
		phase:       domain.PhaseIdle,
		updatedAt:   opts.Clock.Now(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}, nil
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) UserID() string { return c.userID }

// Open restores the cached fiat amount when none was given, performs the first rate
// refresh and starts the refresh interval. The phase stays idle.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	needsAmount := !c.request.IsFixedPricePackage && !c.request.FiatAmount.IsPositive()
	c.mu.Unlock()

	if needsAmount {
		c.restoreFiatAmount(ctx)
	}

	rate := c.pricing.Refresh(ctx)
	c.logger.Info().
		Str("rate", rate.Rate.String()).
		Str("rate_source", string(rate.Source)).
		Msg("Payment session opened")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	refresh := c.timers.StartRateRefresh(c.cfg.RateRefreshInterval)
	c.wg.Add(1)
	go c.pricingLoop(refresh)
	c.touchLocked()
	c.mu.Unlock()

	c.publish()
	return nil
}

func (c *Controller) restoreFiatAmount(ctx context.Context) {
	amount := c.minFiat
	if c.prefs != nil {
		cached, found, err := c.prefs.LoadFiatAmount(ctx, c.request.UserID)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to load cached fiat amount")
		} else if found && cached.GreaterThanOrEqual(c.minFiat) {
			amount = cached
		}
	}

	c.mu.Lock()
	c.setRequestAmountLocked(amount)
	c.mu.Unlock()
}

// SetFiatAmount edits the purchase amount. Before a descriptor exists it changes the
// request; afterwards it only changes the display estimate.
func (c *Controller) SetFiatAmount(ctx context.Context, amount decimal.Decimal) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if c.request.IsFixedPricePackage {
		c.mu.Unlock()
		return domain.ErrPricingLocked
	}
	if amount.LessThan(c.minFiat) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s < %s", domain.ErrAmountBelowMinimum, amount, c.minFiat)
	}

	if c.pricingLockLocked() == domain.PricingEditable {
		c.setRequestAmountLocked(amount)
	} else {
		c.displayFiat = amount
	}
	if c.timers.StartRecalc(c.cfg.RecalcIndicator, c.publish) {
		c.recalcUntil = c.clock.Now().Add(c.cfg.RecalcIndicator)
	}
	c.touchLocked()
	userID := c.request.UserID
	c.mu.Unlock()

	if c.prefs != nil {
		if err := c.prefs.SaveFiatAmount(ctx, userID, amount); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache fiat amount")
		}
	}

	c.publish()
	return nil
}

// Pay creates the payment descriptor once and arms the countdown, hard timeout and
// poller. A second call returns the existing descriptor. On a creation error the
// session fails and closes. The backend call outlives a cancelled ctx since the
// purchase may already be registered; the client timeout still bounds it.
func (c *Controller) Pay(ctx context.Context) (*domain.PaymentDescriptor, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	if c.descriptor != nil {
		d := *c.descriptor
		c.mu.Unlock()
		return &d, nil
	}
	if c.creating {
		c.mu.Unlock()
		return nil, domain.ErrPaymentInProgress
	}
	if c.phase != domain.PhaseIdle {
		phase := c.phase
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: phase %s", domain.ErrSessionClosed, phase)
	}
	if c.request.TokenAmount <= 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: no token amount", domain.ErrAmountBelowMinimum)
	}
	c.creating = true
	req := domain.CreatePurchaseRequest{
		UserID:      c.request.UserID,
		TokenAmount: c.request.TokenAmount,
	}
	c.mu.Unlock()

	c.logger.Info().Int64("token_amount", req.TokenAmount).Msg("Requesting payment descriptor")
	ctx = context.WithoutCancel(ctx)
	info, err := c.api.CreatePurchase(ctx, req)

	c.mu.Lock()
	c.creating = false
	if c.closed {
		c.mu.Unlock()
		c.logger.Info().Msg("Session closed while creating descriptor, discarding result")
		return nil, domain.ErrSessionClosed
	}

	if err != nil {
		if !errors.Is(err, domain.ErrDescriptorCreation) {
			err = fmt.Errorf("%w: %w", domain.ErrDescriptorCreation, err)
		}
		c.transitionLocked(domain.PhaseFailed)
		c.notice = &domain.Notice{Kind: domain.NoticeError, Message: descriptorErrorMessage, Dismissible: true}
		c.mu.Unlock()

		c.logger.Error().Err(err).Msg("Failed to create payment descriptor")
		c.publish()
		c.Close()
		return nil, err
	}

	now := c.clock.Now()
	c.descriptor = &domain.PaymentDescriptor{
		DepositAddress:       info.DepositAddress,
		RequiredCryptoAmount: info.RequiredCryptoAmount,
		Rate:                 info.CryptoFiatPrice,
		CreatedAt:            now,
	}
	c.transitionLocked(domain.PhasePending)
	c.poller = NewStatusPoller(c.api, c.request.UserID, info.DepositAddress, c.logger)
	timers := c.timers.StartPayment(now, c.cfg.Countdown, c.cfg.HardTimeout, c.cfg.PollInterval)
	c.wg.Add(1)
	go c.paymentLoop(timers)
	d := *c.descriptor
	c.mu.Unlock()

	c.pricing.Observe(ctx, info.CryptoFiatPrice)

	c.logger.Info().
		Str("deposit_address", d.DepositAddress).
		Str("required_crypto_amount", c.utils.FormatCrypto(d.RequiredCryptoAmount)).
		Msg("Payment descriptor created")
	c.publish()
	return &d, nil
}

func (c *Controller) pricingLoop(refresh <-chan time.Time) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-refresh:
			c.pricing.Refresh(c.ctx)
			if c.Closed() {
				return
			}
			c.publish()
		}
	}
}

func (c *Controller) paymentLoop(timers PaymentTimers) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-timers.Countdown:
			if c.timers.Remaining() <= 0 {
				c.handleTimeout("countdown")
			} else {
				c.publish()
			}
		case <-timers.Timeout:
			c.handleTimeout("hard_timeout")
		case <-timers.Poll:
			c.startPoll()
		}

		if c.Phase().IsTerminal() {
			return
		}
	}
}

func (c *Controller) startPoll() {
	c.mu.Lock()
	poller := c.poller
	skip := c.closed || c.phase.IsTerminal() || poller == nil
	c.mu.Unlock()
	if skip {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		status, ran, err := poller.Poll(c.ctx)
		if !ran || err != nil {
			return
		}
		c.applyPollResult(status)
	}()
}

// applyPollResult moves the session forward on a poll result. Results arriving after
// close or after a terminal phase are dropped. Completion closes the session.
func (c *Controller) applyPollResult(status domain.PurchaseStatus) {
	next, ok := phaseFor(status)
	if !ok {
		return
	}

	c.mu.Lock()
	if c.closed || !c.transitionLocked(next) {
		c.mu.Unlock()
		return
	}

	var completion *domain.Completion
	if next == domain.PhaseCompleted {
		c.timers.Stop()
		c.notice = &domain.Notice{Kind: domain.NoticeSuccess, Message: successMessage, Dismissible: true}
		completion = c.takeCompletionLocked()
	}
	c.mu.Unlock()

	c.publish()
	if completion != nil {
		c.fireCompletion(*completion)
	}
	if next.IsTerminal() {
		c.Close()
	}
}

func (c *Controller) handleTimeout(reason string) {
	c.mu.Lock()
	if c.closed || !c.transitionLocked(domain.PhaseTimedOut) {
		c.mu.Unlock()
		return
	}
	c.timers.Stop()
	c.notice = &domain.Notice{Kind: domain.NoticeTimeout, Message: timeoutMessage, Dismissible: true}
	c.mu.Unlock()

	c.logger.Warn().Str("reason", reason).Err(domain.ErrSessionTimedOut).Msg("Payment session timed out")
	c.publish()
	c.Close()
}

// takeCompletionLocked returns the completion payload the first time only.
func (c *Controller) takeCompletionLocked() *domain.Completion {
	if c.completionSet {
		return nil
	}
	c.completionSet = true

	completion := domain.Completion{
		SessionID:   c.id,
		UserID:      c.request.UserID,
		Kind:        c.request.Kind(),
		CompletedAt: c.clock.Now(),
	}
	if completion.Kind == domain.PurchaseKindPackage {
		completion.PackageID = c.request.PackageID
		if c.descriptor != nil {
			completion.DepositAddress = c.descriptor.DepositAddress
		}
	}
	return &completion
}

func (c *Controller) fireCompletion(completion domain.Completion) {
	c.logger.Info().Str("kind", string(completion.Kind)).Msg("Payment completed")
	if c.onComplete != nil {
		c.onComplete(completion)
	}
	if c.notifier != nil {
		c.notifier.SessionCompleted(completion)
	}
}

func (c *Controller) transitionLocked(to domain.SessionPhase) bool {
	from := c.phase
	if !domain.CanTransition(from, to) {
		c.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Ignoring transition")
		return false
	}
	c.phase = to
	c.touchLocked()
	c.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("Session phase changed")
	return true
}

func (c *Controller) setRequestAmountLocked(amount decimal.Decimal) {
	c.request.FiatAmount = amount
	c.request.TokenAmount = c.utils.FiatToTokens(amount, c.cfg.TokensPerFiat)
	c.displayFiat = amount
}

func (c *Controller) pricingLockLocked() domain.PricingLock {
	if c.descriptor != nil || c.creating {
		return domain.PricingLocked
	}
	return domain.PricingEditable
}

func (c *Controller) touchLocked() {
	c.updatedAt = c.clock.Now()
}

// Close tears the session down. It stops every timer in any phase, is safe to call
// repeatedly and from callbacks, and causes later results to be discarded.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.timers.Stop()
		c.touchLocked()
		c.mu.Unlock()

		c.cancel()
		go func() {
			c.wg.Wait()
			close(c.done)
		}()

		c.logger.Info().Msg("Payment session closed")
		c.publish()
	})
}

// Done is closed once the session is closed and all its goroutines have exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) Phase() domain.SessionPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Quote is the display estimate for the current fiat amount.
func (c *Controller) Quote() domain.Quote {
	c.mu.Lock()
	fiat := c.displayFiat
	c.mu.Unlock()
	return c.pricing.Quote(fiat)
}

// ActiveTimers reports how many timers and tickers are armed.
func (c *Controller) ActiveTimers() int {
	return c.timers.Active()
}

func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	snap := domain.Snapshot{
		SessionID:     c.id,
		UserID:        c.request.UserID,
		Kind:          c.request.Kind(),
		PackageID:     c.request.PackageID,
		Phase:         c.phase,
		Pricing:       c.pricingLockLocked(),
		CryptoSymbol:  c.cfg.CryptoSymbol,
		TokenAmount:   c.request.TokenAmount,
		Quote:         c.pricing.Quote(c.displayFiat),
		Recalculating: now.Before(c.recalcUntil),
		Closed:        c.closed,
		UpdatedAt:     c.updatedAt,
	}

	if c.descriptor != nil {
		d := *c.descriptor
		snap.Descriptor = &d
		snap.AmountDue = c.utils.FormatCrypto(d.RequiredCryptoAmount)
	} else {
		snap.AmountDue = snap.Quote.EstimatedCryptoAmount
	}

	switch {
	case c.phase.IsTerminal() || c.closed:
		snap.RemainingSeconds = 0
	case c.descriptor != nil:
		snap.RemainingSeconds = int64(math.Ceil(c.timers.Remaining().Seconds()))
	default:
		snap.RemainingSeconds = int64(c.cfg.Countdown.Seconds())
	}

	if c.notice != nil {
		n := *c.notice
		snap.Notice = &n
	}

	return snap
}

// publish must not be called with c.mu held.
func (c *Controller) publish() {
	if c.notifier == nil {
		return
	}
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.notifier.SessionUpdated(c.Snapshot())
}
