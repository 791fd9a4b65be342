package devbackend

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/pkg/currency"
)

// Purchase is one registered purchase awaiting a deposit.
type Purchase struct {
	UserID               string
	TokenAmount          int64
	DepositAddress       string
	RequiredCryptoAmount decimal.Decimal
	Rate                 decimal.Decimal
	PaymentDetected      bool
	TokensCredited       bool
	CreatedAt            time.Time
}

// Store is an in-memory stand-in for the purchase backend's persistence.
type Store struct {
	mu            sync.RWMutex
	purchases     map[string]*Purchase // key = deposit address
	rate          decimal.Decimal
	tokensPerFiat int64
	utils         *currency.CurrencyUtils
}

func NewStore(rate decimal.Decimal, tokensPerFiat int64) *Store {
	if tokensPerFiat <= 0 {
		tokensPerFiat = 100
	}
	return &Store{
		purchases:     make(map[string]*Purchase),
		rate:          rate,
		tokensPerFiat: tokensPerFiat,
		utils:         currency.NewCurrencyUtils(),
	}
}

func (s *Store) Rate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}

func (s *Store) SetRate(rate decimal.Decimal) {
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}

// Create registers a purchase priced at the current rate.
func (s *Store) Create(userID string, tokenAmount int64) Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()

	fiat := decimal.NewFromInt(tokenAmount).Div(decimal.NewFromInt(s.tokensPerFiat))
	p := &Purchase{
		UserID:               userID,
		TokenAmount:          tokenAmount,
		DepositAddress:       newDepositAddress(),
		RequiredCryptoAmount: s.utils.FiatToCrypto(fiat, s.rate),
		Rate:                 s.rate,
		CreatedAt:            time.Now().UTC(),
	}
	s.purchases[p.DepositAddress] = p
	return *p
}

func (s *Store) Get(userID, depositAddress string) (Purchase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.purchases[depositAddress]
	if !ok || p.UserID != userID {
		return Purchase{}, false
	}
	return *p, true
}

// MarkDetected records that a deposit was seen on chain but not yet credited.
func (s *Store) MarkDetected(depositAddress string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[depositAddress]
	if !ok {
		return false
	}
	p.PaymentDetected = true
	return true
}

// MarkCredited records that tokens were credited. Crediting implies detection.
func (s *Store) MarkCredited(depositAddress string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[depositAddress]
	if !ok {
		return false
	}
	p.PaymentDetected = true
	p.TokensCredited = true
	return true
}

// newDepositAddress returns a unique placeholder address; dev mode holds no keys.
func newDepositAddress() string {
	return "DEV" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}
