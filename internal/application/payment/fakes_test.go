package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
)

var errBackendDown = errors.New("backend down")

type fakeAPI struct {
	mu sync.Mutex

	rate      decimal.Decimal
	rateErr   error
	rateCalls int

	createInfo  *domain.PaymentInfo
	createErr   error
	createCalls int
	createBlock chan struct{}

	status      domain.PurchaseStatus
	statusErr   error
	statusCalls int
	statusBlock chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		rate: decimal.NewFromInt(180),
		createInfo: &domain.PaymentInfo{
			DepositAddress:       "DEPOSIT1",
			RequiredCryptoAmount: decimal.RequireFromString("0.055556"),
			CryptoFiatPrice:      decimal.NewFromInt(180),
		},
	}
}

func (f *fakeAPI) CreatePurchase(ctx context.Context, req domain.CreatePurchaseRequest) (*domain.PaymentInfo, error) {
	f.mu.Lock()
	f.createCalls++
	block := f.createBlock
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	info := *f.createInfo
	return &info, nil
}

func (f *fakeAPI) GetExchangeRate(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateCalls++
	if f.rateErr != nil {
		return decimal.Zero, f.rateErr
	}
	return f.rate, nil
}

func (f *fakeAPI) GetPurchaseStatus(ctx context.Context, userID, depositAddress string) (domain.PurchaseStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	block := f.statusBlock
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.PurchaseStatus{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeAPI) setRate(rate decimal.Decimal, err error) {
	f.mu.Lock()
	f.rate, f.rateErr = rate, err
	f.mu.Unlock()
}

func (f *fakeAPI) setStatus(status domain.PurchaseStatus) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

func (f *fakeAPI) calls() (rate, create, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rateCalls, f.createCalls, f.statusCalls
}

type fakePrefs struct {
	mu    sync.Mutex
	rates map[string]domain.ExchangeRate
	fiat  map[string]decimal.Decimal
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{
		rates: make(map[string]domain.ExchangeRate),
		fiat:  make(map[string]decimal.Decimal),
	}
}

func (p *fakePrefs) LoadRate(ctx context.Context, symbol string) (domain.ExchangeRate, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rates[symbol]
	if ok {
		r.Source = domain.RateSourceCache
	}
	return r, ok, nil
}

func (p *fakePrefs) SaveRate(ctx context.Context, symbol string, rate domain.ExchangeRate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[symbol] = rate
	return nil
}

func (p *fakePrefs) LoadFiatAmount(ctx context.Context, userID string) (decimal.Decimal, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.fiat[userID]
	return a, ok, nil
}

func (p *fakePrefs) SaveFiatAmount(ctx context.Context, userID string, amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fiat[userID] = amount
	return nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	snapshots   []domain.Snapshot
	completions []domain.Completion
}

func (n *recordingNotifier) SessionUpdated(snapshot domain.Snapshot) {
	n.mu.Lock()
	n.snapshots = append(n.snapshots, snapshot)
	n.mu.Unlock()
}

func (n *recordingNotifier) SessionCompleted(completion domain.Completion) {
	n.mu.Lock()
	n.completions = append(n.completions, completion)
	n.mu.Unlock()
}

func (n *recordingNotifier) phases() []domain.SessionPhase {
	n.mu.Lock()
	defer n.mu.Unlock()
	phases := make([]domain.SessionPhase, 0, len(n.snapshots))
	for _, s := range n.snapshots {
		phases = append(phases, s.Phase)
	}
	return phases
}

func (n *recordingNotifier) completionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completions)
}

func (n *recordingNotifier) lastSnapshot() (domain.Snapshot, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.snapshots) == 0 {
		return domain.Snapshot{}, 0
	}
	return n.snapshots[len(n.snapshots)-1], len(n.snapshots)
}

// gatedNotifier holds the first SessionUpdated call made after hold() until release().
type gatedNotifier struct {
	*recordingNotifier

	armed   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedNotifier() *gatedNotifier {
	return &gatedNotifier{
		recordingNotifier: &recordingNotifier{},
		entered:           make(chan struct{}),
		gate:              make(chan struct{}),
	}
}

func (n *gatedNotifier) hold() { n.armed.Store(true) }

func (n *gatedNotifier) release() { n.once.Do(func() { close(n.gate) }) }

func (n *gatedNotifier) SessionUpdated(snapshot domain.Snapshot) {
	if n.armed.CompareAndSwap(true, false) {
		close(n.entered)
		<-n.gate
	}
	n.recordingNotifier.SessionUpdated(snapshot)
}
