package payment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
)

type controllerHarness struct {
	c         *Controller
	api       *fakeAPI
	prefs     *fakePrefs
	notifier  *recordingNotifier
	mock      *clock.Mock
	completed atomic.Int32
	last      atomic.Value
}

func testPaymentConfig() config.PaymentConfig {
	return config.Default().Payment
}

func newHarness(t *testing.T, req domain.PurchaseRequest, mutate ...func(*ControllerOptions)) *controllerHarness {
	t.Helper()

	h := &controllerHarness{
		api:      newFakeAPI(),
		prefs:    newFakePrefs(),
		notifier: &recordingNotifier{},
		mock:     clock.NewMock(),
	}

	opts := ControllerOptions{
		SessionID:   "session-1",
		Request:     req,
		Config:      testPaymentConfig(),
		API:         h.api,
		Preferences: h.prefs,
		Notifier:    h.notifier,
		OnComplete: func(c domain.Completion) {
			h.completed.Add(1)
			h.last.Store(c)
		},
		Clock:  h.mock,
		Logger: zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&opts)
	}

	c, err := NewController(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	h.c = c
	return h
}

func tokensRequest(fiat int64) domain.PurchaseRequest {
	return domain.PurchaseRequest{UserID: "u1", FiatAmount: decimal.NewFromInt(fiat)}
}

func packageRequest() domain.PurchaseRequest {
	return domain.PurchaseRequest{
		UserID:              "u1",
		FiatAmount:          decimal.NewFromInt(25),
		TokenAmount:         3000,
		IsFixedPricePackage: true,
		PackageID:           "gold",
	}
}

func (h *controllerHarness) openAndPay(t *testing.T) *domain.PaymentDescriptor {
	t.Helper()
	require.NoError(t, h.c.Open(context.Background()))
	d, err := h.c.Pay(context.Background())
	require.NoError(t, err)
	return d
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("controller goroutines did not exit")
	}
}

func TestNewController_Validation(t *testing.T) {
	_, err := NewController(ControllerOptions{Request: tokensRequest(10), Logger: zerolog.Nop()})
	assert.Error(t, err)

	_, err = NewController(ControllerOptions{API: newFakeAPI(), Request: domain.PurchaseRequest{}, Logger: zerolog.Nop()})
	assert.Error(t, err)

	_, err = NewController(ControllerOptions{
		API:     newFakeAPI(),
		Request: domain.PurchaseRequest{UserID: "u1", IsFixedPricePackage: true},
		Config:  testPaymentConfig(),
		Logger:  zerolog.Nop(),
	})
	assert.ErrorIs(t, err, domain.ErrUnknownPackage)

	_, err = NewController(ControllerOptions{
		API:     newFakeAPI(),
		Request: domain.PurchaseRequest{UserID: "u1", FiatAmount: decimal.RequireFromString("0.5")},
		Config:  testPaymentConfig(),
		Logger:  zerolog.Nop(),
	})
	assert.ErrorIs(t, err, domain.ErrAmountBelowMinimum)
}

func TestOpen_StaysIdleWithLiveQuote(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	require.NoError(t, h.c.Open(context.Background()))

	snap := h.c.Snapshot()
	assert.Equal(t, domain.PhaseIdle, snap.Phase)
	assert.Equal(t, domain.PricingEditable, snap.Pricing)
	assert.Equal(t, int64(1000), snap.TokenAmount)
	assert.Equal(t, "0.055556", snap.AmountDue)
	assert.Equal(t, domain.RateSourceLive, snap.Quote.RateSource)
	assert.False(t, snap.Quote.Estimated)
	assert.Nil(t, snap.Descriptor)
	assert.Equal(t, int64(20*60), snap.RemainingSeconds)
	assert.Equal(t, 1, h.c.ActiveTimers())

	require.NoError(t, h.c.Open(context.Background()))
	rateCalls, _, _ := h.api.calls()
	assert.Equal(t, 1, rateCalls)
}

func TestOpen_RestoresCachedFiatAmount(t *testing.T) {
	h := newHarness(t, domain.PurchaseRequest{UserID: "u1"})
	require.NoError(t, h.prefs.SaveFiatAmount(context.Background(), "u1", decimal.NewFromInt(7)))

	require.NoError(t, h.c.Open(context.Background()))
	snap := h.c.Snapshot()
	assert.True(t, snap.Quote.FiatAmount.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, int64(700), snap.TokenAmount)
}

func TestOpen_WithoutAmountUsesMinimum(t *testing.T) {
	h := newHarness(t, domain.PurchaseRequest{UserID: "u1"})

	require.NoError(t, h.c.Open(context.Background()))
	snap := h.c.Snapshot()
	assert.True(t, snap.Quote.FiatAmount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int64(100), snap.TokenAmount)
}

func TestOpen_RateFailureFallsBackToDefault(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.api.setRate(decimal.Zero, errBackendDown)

	require.NoError(t, h.c.Open(context.Background()))
	q := h.c.Quote()
	assert.True(t, q.Estimated)
	assert.Equal(t, domain.RateSourceDefault, q.RateSource)
	assert.Equal(t, "0.055556", q.EstimatedCryptoAmount)
}

func TestSetFiatAmount_BeforeDescriptor(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	require.NoError(t, h.c.Open(context.Background()))

	require.NoError(t, h.c.SetFiatAmount(context.Background(), decimal.NewFromInt(20)))
	snap := h.c.Snapshot()
	assert.Equal(t, int64(2000), snap.TokenAmount)
	assert.Equal(t, "0.111111", snap.AmountDue)
	assert.True(t, snap.Recalculating)

	h.mock.Add(500 * time.Millisecond)
	assert.False(t, h.c.Snapshot().Recalculating)

	cached, found, _ := h.prefs.LoadFiatAmount(context.Background(), "u1")
	require.True(t, found)
	assert.True(t, cached.Equal(decimal.NewFromInt(20)))
}

func TestSetFiatAmount_PushesWhenIndicatorEnds(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	require.NoError(t, h.c.Open(context.Background()))

	require.NoError(t, h.c.SetFiatAmount(context.Background(), decimal.NewFromInt(20)))
	last, pushed := h.notifier.lastSnapshot()
	assert.True(t, last.Recalculating)
	assert.Equal(t, 2, h.c.ActiveTimers())

	h.mock.Add(testPaymentConfig().RecalcIndicator)
	require.Eventually(t, func() bool {
		last, n := h.notifier.lastSnapshot()
		return n == pushed+1 && !last.Recalculating
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.c.ActiveTimers())
}

func TestSetFiatAmount_RepeatedEditsExtendIndicator(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	require.NoError(t, h.c.Open(context.Background()))
	window := testPaymentConfig().RecalcIndicator

	require.NoError(t, h.c.SetFiatAmount(context.Background(), decimal.NewFromInt(20)))
	h.mock.Add(window / 2)
	require.NoError(t, h.c.SetFiatAmount(context.Background(), decimal.NewFromInt(30)))
	_, pushed := h.notifier.lastSnapshot()

	h.mock.Add(window / 2)
	assert.True(t, h.c.Snapshot().Recalculating)
	_, n := h.notifier.lastSnapshot()
	assert.Equal(t, pushed, n)

	h.mock.Add(window / 2)
	require.Eventually(t, func() bool {
		last, n := h.notifier.lastSnapshot()
		return n == pushed+1 && !last.Recalculating
	}, time.Second, 5*time.Millisecond)
}

func TestSetFiatAmount_Rejections(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	require.NoError(t, h.c.Open(context.Background()))

	err := h.c.SetFiatAmount(context.Background(), decimal.RequireFromString("0.99"))
	assert.ErrorIs(t, err, domain.ErrAmountBelowMinimum)

	pkg := newHarness(t, packageRequest())
	require.NoError(t, pkg.c.Open(context.Background()))
	assert.ErrorIs(t, pkg.c.SetFiatAmount(context.Background(), decimal.NewFromInt(50)), domain.ErrPricingLocked)
	assert.Equal(t, int64(3000), pkg.c.Snapshot().TokenAmount)

	h.c.Close()
	assert.ErrorIs(t, h.c.SetFiatAmount(context.Background(), decimal.NewFromInt(20)), domain.ErrSessionClosed)
}

func TestPay_CreatesDescriptorOnce(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	d := h.openAndPay(t)

	assert.Equal(t, "DEPOSIT1", d.DepositAddress)
	snap := h.c.Snapshot()
	assert.Equal(t, domain.PhasePending, snap.Phase)
	assert.Equal(t, domain.PricingLocked, snap.Pricing)
	require.NotNil(t, snap.Descriptor)
	assert.Equal(t, "0.055556", snap.AmountDue)
	assert.Equal(t, int64(20*60), snap.RemainingSeconds)
	assert.Equal(t, 4, h.c.ActiveTimers())

	again, err := h.c.Pay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, d.DepositAddress, again.DepositAddress)

	_, createCalls, _ := h.api.calls()
	assert.Equal(t, 1, createCalls)
}

func TestPay_SurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	require.NoError(t, h.c.Open(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := h.c.Pay(ctx)
	require.NoError(t, err)
	assert.Equal(t, "DEPOSIT1", d.DepositAddress)
	assert.Equal(t, domain.PhasePending, h.c.Phase())
	assert.False(t, h.c.Closed())
}

func TestPay_ConcurrentCallWhileCreating(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.api.createBlock = make(chan struct{})
	require.NoError(t, h.c.Open(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := h.c.Pay(context.Background())
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		_, create, _ := h.api.calls()
		return create == 1
	}, time.Second, time.Millisecond)

	_, err := h.c.Pay(context.Background())
	assert.ErrorIs(t, err, domain.ErrPaymentInProgress)
	assert.Equal(t, domain.PricingLocked, h.c.Snapshot().Pricing)

	close(h.api.createBlock)
	require.NoError(t, <-errCh)
	assert.Equal(t, domain.PhasePending, h.c.Phase())
}

func TestPay_NonSuccessResponseFailsAndCloses(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.api.createErr = domain.ErrDescriptorCreation
	require.NoError(t, h.c.Open(context.Background()))

	_, err := h.c.Pay(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDescriptorCreation)

	snap := h.c.Snapshot()
	assert.Equal(t, domain.PhaseFailed, snap.Phase)
	assert.True(t, snap.Closed)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, domain.NoticeError, snap.Notice.Kind)
	assert.Nil(t, snap.Descriptor)
	assert.Equal(t, 0, h.c.ActiveTimers())
	assert.Equal(t, int32(0), h.completed.Load())
	assert.NotContains(t, h.notifier.phases(), domain.PhasePending)
	waitDone(t, h.c)
}

func TestPay_PlainErrorIsWrapped(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.api.createErr = errBackendDown
	require.NoError(t, h.c.Open(context.Background()))

	_, err := h.c.Pay(context.Background())
	assert.ErrorIs(t, err, domain.ErrDescriptorCreation)
}

func TestPay_CloseDuringCreationDiscardsResult(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.api.createBlock = make(chan struct{})
	require.NoError(t, h.c.Open(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := h.c.Pay(context.Background())
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		_, create, _ := h.api.calls()
		return create == 1
	}, time.Second, time.Millisecond)

	h.c.Close()
	close(h.api.createBlock)

	assert.ErrorIs(t, <-errCh, domain.ErrSessionClosed)
	assert.Equal(t, domain.PhaseIdle, h.c.Phase())
	assert.Nil(t, h.c.Snapshot().Descriptor)
	assert.Equal(t, 0, h.c.ActiveTimers())
}

func TestDisplayEstimateNeverChangesSettlementAmount(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)

	h.api.setRate(decimal.NewFromInt(150), nil)
	h.c.pricing.Refresh(context.Background())

	snap := h.c.Snapshot()
	assert.Equal(t, "0.066667", snap.Quote.EstimatedCryptoAmount)
	assert.Equal(t, "0.055556", snap.AmountDue)

	require.NoError(t, h.c.SetFiatAmount(context.Background(), decimal.NewFromInt(30)))
	snap = h.c.Snapshot()
	assert.Equal(t, "0.200000", snap.Quote.EstimatedCryptoAmount)
	assert.Equal(t, "0.055556", snap.AmountDue)
	assert.Equal(t, int64(1000), snap.TokenAmount)
	assert.Equal(t, "0.055556", snap.Descriptor.RequiredCryptoAmount.StringFixed(6))
}

func TestPollResults_DriveTransitions(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)

	h.c.applyPollResult(domain.PurchaseStatus{})
	assert.Equal(t, domain.PhasePending, h.c.Phase())

	h.c.applyPollResult(domain.PurchaseStatus{PaymentDetected: true})
	assert.Equal(t, domain.PhaseProcessing, h.c.Phase())

	h.c.applyPollResult(domain.PurchaseStatus{PaymentDetected: true})
	assert.Equal(t, domain.PhaseProcessing, h.c.Phase())

	h.c.applyPollResult(domain.PurchaseStatus{PaymentDetected: true, TokensCredited: true})
	assert.Equal(t, domain.PhaseCompleted, h.c.Phase())
	assert.Equal(t, int32(1), h.completed.Load())
	assert.Equal(t, 1, h.notifier.completionCount())
	assert.Equal(t, 0, h.c.ActiveTimers())

	snap := h.c.Snapshot()
	require.NotNil(t, snap.Notice)
	assert.Equal(t, domain.NoticeSuccess, snap.Notice.Kind)
	assert.Equal(t, int64(0), snap.RemainingSeconds)
	assert.True(t, snap.Closed)
	waitDone(t, h.c)
}

func TestTimeoutClosesSession(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)

	h.c.handleTimeout("hard_timeout")

	assert.Equal(t, domain.PhaseTimedOut, h.c.Phase())
	assert.True(t, h.c.Closed())
	last, _ := h.notifier.lastSnapshot()
	assert.Equal(t, domain.PhaseTimedOut, last.Phase)
	assert.True(t, last.Closed)
	waitDone(t, h.c)
}

func TestPushesNeverGoBackAfterTerminal(t *testing.T) {
	gated := newGatedNotifier()
	h := newHarness(t, tokensRequest(10), func(o *ControllerOptions) {
		o.Notifier = gated
	})
	h.openAndPay(t)

	gated.hold()
	defer gated.release()
	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		h.c.publish()
	}()
	<-gated.entered

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		h.c.applyPollResult(domain.PurchaseStatus{PaymentDetected: true, TokensCredited: true})
	}()
	require.Eventually(t, func() bool { return h.c.Phase() == domain.PhaseCompleted }, time.Second, time.Millisecond)

	gated.release()
	<-tickDone
	<-pollDone

	phases := gated.phases()
	require.NotEmpty(t, phases)
	assert.Equal(t, domain.PhaseCompleted, phases[len(phases)-1])
	seenTerminal := false
	for _, p := range phases {
		if p.IsTerminal() {
			seenTerminal = true
			continue
		}
		assert.False(t, seenTerminal, "non-terminal push %s after terminal in %v", p, phases)
	}
}

func TestCompletionFiresExactlyOnce(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)

	credited := domain.PurchaseStatus{PaymentDetected: true, TokensCredited: true}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.c.applyPollResult(credited)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.completed.Load())
	assert.Equal(t, 1, h.notifier.completionCount())
}

func TestTimeoutThenCredited_StaysTimedOut(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)

	h.c.handleTimeout("hard_timeout")
	h.c.applyPollResult(domain.PurchaseStatus{PaymentDetected: true, TokensCredited: true})

	assert.Equal(t, domain.PhaseTimedOut, h.c.Phase())
	assert.Equal(t, int32(0), h.completed.Load())
}

func TestCreditedThenTimeout_StaysCompleted(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)

	h.c.applyPollResult(domain.PurchaseStatus{PaymentDetected: true, TokensCredited: true})
	h.c.handleTimeout("countdown")

	assert.Equal(t, domain.PhaseCompleted, h.c.Phase())
	assert.Equal(t, int32(1), h.completed.Load())
}

func TestRacingTerminalSignals_FirstWins(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, tokensRequest(10))
		h.openAndPay(t)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.c.handleTimeout("hard_timeout")
		}()
		go func() {
			defer wg.Done()
			h.c.applyPollResult(domain.PurchaseStatus{TokensCredited: true})
		}()
		wg.Wait()

		switch h.c.Phase() {
		case domain.PhaseCompleted:
			assert.Equal(t, int32(1), h.completed.Load())
		case domain.PhaseTimedOut:
			assert.Equal(t, int32(0), h.completed.Load())
		default:
			t.Fatalf("unexpected phase %s", h.c.Phase())
		}
		assert.Equal(t, 0, h.c.ActiveTimers())
	}
}

func TestHardTimeoutAfterFiveMinutes(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)

	h.mock.Add(5*time.Minute - time.Second)
	assert.Never(t, func() bool { return h.c.Phase() == domain.PhaseTimedOut }, 50*time.Millisecond, 5*time.Millisecond)

	h.mock.Add(time.Second)
	require.Eventually(t, func() bool { return h.c.Phase() == domain.PhaseTimedOut }, 2*time.Second, 5*time.Millisecond)

	snap := h.c.Snapshot()
	require.NotNil(t, snap.Notice)
	assert.Equal(t, domain.NoticeTimeout, snap.Notice.Kind)
	assert.True(t, snap.Notice.Dismissible)
	assert.Equal(t, 0, h.c.ActiveTimers())
	assert.Equal(t, int32(0), h.completed.Load())

	h.c.applyPollResult(domain.PurchaseStatus{TokensCredited: true})
	assert.Equal(t, int32(0), h.completed.Load())
}

func TestCountdownExpiryTimesOut(t *testing.T) {
	h := newHarness(t, tokensRequest(10), func(o *ControllerOptions) {
		o.Config.Countdown = 10 * time.Second
		o.Config.HardTimeout = time.Hour
	})
	h.openAndPay(t)

	h.mock.Add(5 * time.Second)
	require.Eventually(t, func() bool { return h.c.Snapshot().RemainingSeconds == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.PhasePending, h.c.Phase())

	h.mock.Add(5 * time.Second)
	require.Eventually(t, func() bool { return h.c.Phase() == domain.PhaseTimedOut }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.c.ActiveTimers())
}

func TestPollTickerCompletesSession(t *testing.T) {
	h := newHarness(t, packageRequest())
	h.openAndPay(t)

	h.api.setStatus(domain.PurchaseStatus{PaymentDetected: true})
	h.mock.Add(3 * time.Second)
	require.Eventually(t, func() bool { return h.c.Phase() == domain.PhaseProcessing }, 2*time.Second, 5*time.Millisecond)

	h.api.setStatus(domain.PurchaseStatus{PaymentDetected: true, TokensCredited: true})
	h.mock.Add(3 * time.Second)
	require.Eventually(t, func() bool { return h.c.Phase() == domain.PhaseCompleted }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return h.completed.Load() == 1 }, time.Second, 5*time.Millisecond)
	completion := h.last.Load().(domain.Completion)
	assert.Equal(t, domain.PurchaseKindPackage, completion.Kind)
	assert.Equal(t, "gold", completion.PackageID)
	assert.Equal(t, "DEPOSIT1", completion.DepositAddress)
	assert.Equal(t, "session-1", completion.SessionID)
}

func TestTokensCompletionCarriesNoPayload(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)

	h.c.applyPollResult(domain.PurchaseStatus{TokensCredited: true})
	completion := h.last.Load().(domain.Completion)
	assert.Equal(t, domain.PurchaseKindTokens, completion.Kind)
	assert.Empty(t, completion.DepositAddress)
	assert.Empty(t, completion.PackageID)
}

func TestPollErrorsAreSwallowed(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.api.statusErr = errBackendDown
	h.openAndPay(t)

	h.mock.Add(9 * time.Second)
	require.Eventually(t, func() bool {
		_, _, status := h.api.calls()
		return status >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.PhasePending, h.c.Phase())
}

func TestRateTickerRefreshesQuote(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	require.NoError(t, h.c.Open(context.Background()))

	h.api.setRate(decimal.NewFromInt(150), nil)
	h.mock.Add(3 * time.Minute)
	require.Eventually(t, func() bool {
		return h.c.Quote().EstimatedCryptoAmount == "0.066667"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClose_IsIdempotentInEveryPhase(t *testing.T) {
	idle := newHarness(t, tokensRequest(10))
	require.NoError(t, idle.c.Open(context.Background()))

	pending := newHarness(t, tokensRequest(10))
	pending.openAndPay(t)

	processing := newHarness(t, tokensRequest(10))
	processing.openAndPay(t)
	processing.c.applyPollResult(domain.PurchaseStatus{PaymentDetected: true})

	never := newHarness(t, tokensRequest(10))

	for _, h := range []*controllerHarness{idle, pending, processing, never} {
		for i := 0; i < 3; i++ {
			h.c.Close()
			assert.Equal(t, 0, h.c.ActiveTimers())
		}
		assert.True(t, h.c.Snapshot().Closed)
		waitDone(t, h.c)
	}
}

func TestClose_DiscardsLateResults(t *testing.T) {
	h := newHarness(t, tokensRequest(10))
	h.openAndPay(t)
	h.c.Close()

	h.c.applyPollResult(domain.PurchaseStatus{TokensCredited: true})
	h.c.handleTimeout("hard_timeout")

	assert.Equal(t, domain.PhasePending, h.c.Phase())
	assert.Equal(t, int32(0), h.completed.Load())

	_, err := h.c.Pay(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.ErrorIs(t, h.c.Open(context.Background()), domain.ErrSessionClosed)
}

func TestClose_FromCompletionCallback(t *testing.T) {
	var c *Controller
	h := newHarness(t, tokensRequest(10), func(o *ControllerOptions) {
		o.OnComplete = func(domain.Completion) { c.Close() }
	})
	c = h.c
	h.openAndPay(t)

	h.c.applyPollResult(domain.PurchaseStatus{TokensCredited: true})
	assert.True(t, h.c.Closed())
	waitDone(t, h.c)
}
