package payment

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// PaymentTimers are the channels armed once a descriptor exists.
type PaymentTimers struct {
	Countdown <-chan time.Time
	Timeout   <-chan time.Time
	Poll      <-chan time.Time
}

// TimerSet owns every ticker and timer of a session so they can be stopped together.
// Countdown remaining time is derived from a deadline, not from counted ticks.
type TimerSet struct {
	clock clock.Clock

	mu          sync.Mutex
	rate        *clock.Ticker
	countdown   *clock.Ticker
	poll        *clock.Ticker
	hardTimeout *clock.Timer
	recalc      *clock.Timer
	deadline    time.Time
	stopped     bool
}

func NewTimerSet(clk clock.Clock) *TimerSet {
	return &TimerSet{clock: clk}
}

// StartRateRefresh arms the rate refresh ticker. It returns nil after Stop.
func (t *TimerSet) StartRateRefresh(interval time.Duration) <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.rate != nil {
		return nil
	}
	t.rate = t.clock.Ticker(interval)
	return t.rate.C
}

// StartPayment arms the 1s countdown toward startedAt+countdown, the hard timeout and
// the poll ticker. A second call or a call after Stop arms nothing.
func (t *TimerSet) StartPayment(startedAt time.Time, countdown, hardTimeout, pollInterval time.Duration) PaymentTimers {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.countdown != nil {
		return PaymentTimers{}
	}

	t.deadline = startedAt.Add(countdown)
	t.countdown = t.clock.Ticker(time.Second)
	t.hardTimeout = t.clock.Timer(hardTimeout)
	t.poll = t.clock.Ticker(pollInterval)

	return PaymentTimers{
		Countdown: t.countdown.C,
		Timeout:   t.hardTimeout.C,
		Poll:      t.poll.C,
	}
}

// StartRecalc arms fn to run once after d, replacing a pending recalc timer. It reports
// false after Stop.
func (t *TimerSet) StartRecalc(d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	if t.recalc != nil {
		t.recalc.Stop()
	}

	var timer *clock.Timer
	timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		current := t.recalc == timer
		if current {
			t.recalc = nil
		}
		t.mu.Unlock()

		if current {
			fn()
		}
	})
	t.recalc = timer
	return true
}

// Remaining is the countdown left, zero once the deadline passed or if never started.
func (t *TimerSet) Remaining() time.Duration {
	t.mu.Lock()
	deadline := t.deadline
	t.mu.Unlock()

	if deadline.IsZero() {
		return 0
	}
	if left := t.clock.Until(deadline); left > 0 {
		return left
	}
	return 0
}

// Stop disarms everything. Safe to call any number of times.
func (t *TimerSet) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.rate != nil {
		t.rate.Stop()
		t.rate = nil
	}
	if t.countdown != nil {
		t.countdown.Stop()
		t.countdown = nil
	}
	if t.poll != nil {
		t.poll.Stop()
		t.poll = nil
	}
	if t.hardTimeout != nil {
		t.hardTimeout.Stop()
		t.hardTimeout = nil
	}
	if t.recalc != nil {
		t.recalc.Stop()
		t.recalc = nil
	}
}

// Active counts armed timers and tickers.
func (t *TimerSet) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, armed := range []bool{t.rate != nil, t.countdown != nil, t.poll != nil, t.hardTimeout != nil, t.recalc != nil} {
		if armed {
			n++
		}
	}
	return n
}

func (t *TimerSet) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
