package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseKind string

const (
	PurchaseKindTokens  PurchaseKind = "tokens"
	PurchaseKindPackage PurchaseKind = "package"
)

// Package is a fixed-price purchase.
type Package struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	FiatAmount  decimal.Decimal `json:"fiat_amount"`
	TokenAmount int64           `json:"token_amount"`
}

type PurchaseRequest struct {
	UserID              string          `json:"user_id"`
	FiatAmount          decimal.Decimal `json:"fiat_amount"`
	TokenAmount         int64           `json:"token_amount"`
	IsFixedPricePackage bool            `json:"is_fixed_price_package"`
	PackageID           string          `json:"package_id,omitempty"`
}

func (r PurchaseRequest) Kind() PurchaseKind {
	if r.IsFixedPricePackage {
		return PurchaseKindPackage
	}
	return PurchaseKindTokens
}

type RateSource string

const (
	RateSourceLive    RateSource = "live"
	RateSourceCache   RateSource = "cache"
	RateSourceDefault RateSource = "default"
)

type ExchangeRate struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
	Source    RateSource      `json:"source"`
}

func (r ExchangeRate) Valid() bool {
	return r.Rate.IsPositive()
}

// PaymentDescriptor is the backend-issued payment target. RequiredCryptoAmount is the
// settlement amount and is never recomputed.
type PaymentDescriptor struct {
	DepositAddress       string          `json:"deposit_address"`
	RequiredCryptoAmount decimal.Decimal `json:"required_crypto_amount"`
	Rate                 decimal.Decimal `json:"rate"`
	CreatedAt            time.Time       `json:"created_at"`
}

type PurchaseStatus struct {
	PaymentDetected bool `json:"paymentDetected"`
	TokensCredited  bool `json:"tokensCredited"`
}

type Quote struct {
	FiatAmount            decimal.Decimal `json:"fiat_amount"`
	Rate                  decimal.Decimal `json:"rate"`
	RateSource            RateSource      `json:"rate_source"`
	RateFetchedAt         time.Time       `json:"rate_fetched_at"`
	EstimatedCryptoAmount string          `json:"estimated_crypto_amount"`
	Estimated             bool            `json:"estimated"`
}

// Completion is handed to the surrounding app exactly once per completed session.
type Completion struct {
	SessionID      string       `json:"session_id"`
	UserID         string       `json:"user_id"`
	Kind           PurchaseKind `json:"kind"`
	DepositAddress string       `json:"deposit_address,omitempty"`
	PackageID      string       `json:"package_id,omitempty"`
	CompletedAt    time.Time    `json:"completed_at"`
}

type Snapshot struct {
	SessionID        string             `json:"session_id"`
	UserID           string             `json:"user_id"`
	Kind             PurchaseKind       `json:"kind"`
	PackageID        string             `json:"package_id,omitempty"`
	Phase            SessionPhase       `json:"phase"`
	Pricing          PricingLock        `json:"pricing"`
	CryptoSymbol     string             `json:"crypto_symbol"`
	TokenAmount      int64              `json:"token_amount"`
	Quote            Quote              `json:"quote"`
	Descriptor       *PaymentDescriptor `json:"descriptor,omitempty"`
	AmountDue        string             `json:"amount_due"`
	RemainingSeconds int64              `json:"remaining_seconds"`
	Recalculating    bool               `json:"recalculating"`
	Notice           *Notice            `json:"notice,omitempty"`
	Closed           bool               `json:"closed"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
