package preferencerepo

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
)

// IPreferenceRepository is the best-effort local cache. Nothing read from it is
// authoritative: a missing or unreadable entry is reported as absent.
type IPreferenceRepository interface {
	LoadRate(ctx context.Context, symbol string) (domain.ExchangeRate, bool, error)
	SaveRate(ctx context.Context, symbol string, rate domain.ExchangeRate) error
	LoadFiatAmount(ctx context.Context, userID string) (decimal.Decimal, bool, error)
	SaveFiatAmount(ctx context.Context, userID string, amount decimal.Decimal) error
}
