package payment

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/internal/domain/interfaces"
	"github.com/w1nex5372/ernioCasino-sub000/internal/repositories/preferencerepo"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/currency"
)

// PriceRecalculator keeps the current exchange rate and derives crypto amounts from it.
// On a failed refresh it falls back to the last live rate, then to a cached rate younger
// than cacheMaxAge, then to the default rate.
type PriceRecalculator struct {
	api         interfaces.PurchaseAPI
	prefs       preferencerepo.IPreferenceRepository
	clock       clock.Clock
	symbol      string
	defaultRate decimal.Decimal
	cacheMaxAge time.Duration
	utils       *currency.CurrencyUtils
	logger      zerolog.Logger

	mu      sync.RWMutex
	current domain.ExchangeRate
}

func NewPriceRecalculator(
	api interfaces.PurchaseAPI,
	prefs preferencerepo.IPreferenceRepository,
	clk clock.Clock,
	symbol string,
	defaultRate decimal.Decimal,
	cacheMaxAge time.Duration,
	logger zerolog.Logger,
) *PriceRecalculator {
	return &PriceRecalculator{
		api:         api,
		prefs:       prefs,
		clock:       clk,
		symbol:      symbol,
		defaultRate: defaultRate,
		cacheMaxAge: cacheMaxAge,
		utils:       currency.NewCurrencyUtils(),
		logger:      logger.With().Str("component", "price_recalculator").Logger(),
	}
}

// Refresh fetches the live rate and returns the rate now in effect. It never fails.
func (r *PriceRecalculator) Refresh(ctx context.Context) domain.ExchangeRate {
	price, err := r.api.GetExchangeRate(ctx)
	if err == nil && price.IsPositive() {
		return r.Observe(ctx, price)
	}

	r.logger.Warn().Err(err).Str("symbol", r.symbol).Msg("Exchange rate refresh failed, using fallback")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current.Source == domain.RateSourceLive && r.current.Valid() {
		return r.current
	}

	if cached, ok := r.loadCached(ctx); ok {
		r.current = cached
		return r.current
	}

	r.current = domain.ExchangeRate{
		Rate:      r.defaultRate,
		FetchedAt: r.clock.Now(),
		Source:    domain.RateSourceDefault,
	}
	r.logger.Warn().Str("rate", r.defaultRate.String()).Msg("Using default exchange rate; amounts are estimates")
	return r.current
}

// Observe adopts price as a live observation and writes it through to the cache.
// Non-positive prices are ignored.
func (r *PriceRecalculator) Observe(ctx context.Context, price decimal.Decimal) domain.ExchangeRate {
	if !price.IsPositive() {
		return r.Current()
	}

	r.mu.Lock()
	r.current = domain.ExchangeRate{
		Rate:      price,
		FetchedAt: r.clock.Now(),
		Source:    domain.RateSourceLive,
	}
	rate := r.current
	r.mu.Unlock()

	if r.prefs != nil {
		if err := r.prefs.SaveRate(ctx, r.symbol, rate); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to cache exchange rate")
		}
	}

	r.logger.Debug().Str("rate", price.String()).Msg("Exchange rate updated")
	return rate
}

// Current returns the rate in effect, or the default rate before the first refresh.
func (r *PriceRecalculator) Current() domain.ExchangeRate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentLocked()
}

// Derive converts fiat to crypto at the current rate, 6 dp half away from zero.
func (r *PriceRecalculator) Derive(fiat decimal.Decimal) decimal.Decimal {
	return r.utils.FiatToCrypto(fiat, r.Current().Rate)
}

func (r *PriceRecalculator) Quote(fiat decimal.Decimal) domain.Quote {
	rate := r.Current()
	return domain.Quote{
		FiatAmount:            fiat,
		Rate:                  rate.Rate,
		RateSource:            rate.Source,
		RateFetchedAt:         rate.FetchedAt,
		EstimatedCryptoAmount: r.utils.FormatCrypto(r.utils.FiatToCrypto(fiat, rate.Rate)),
		Estimated:             rate.Source == domain.RateSourceDefault,
	}
}

func (r *PriceRecalculator) currentLocked() domain.ExchangeRate {
	if r.current.Valid() {
		return r.current
	}
	return domain.ExchangeRate{Rate: r.defaultRate, FetchedAt: r.clock.Now(), Source: domain.RateSourceDefault}
}

func (r *PriceRecalculator) loadCached(ctx context.Context) (domain.ExchangeRate, bool) {
	if r.prefs == nil {
		return domain.ExchangeRate{}, false
	}

	cached, found, err := r.prefs.LoadRate(ctx, r.symbol)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to read cached exchange rate")
		return domain.ExchangeRate{}, false
	}
	if !found || !cached.Valid() {
		return domain.ExchangeRate{}, false
	}

	if age := r.clock.Since(cached.FetchedAt); age >= r.cacheMaxAge {
		r.logger.Debug().Dur("age", age).Msg("Cached exchange rate too old")
		return domain.ExchangeRate{}, false
	}

	cached.Source = domain.RateSourceCache
	return cached, true
}
