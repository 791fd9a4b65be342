package preferencerepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/internal/infrastructure/database"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/db"
)

type preferenceRepositoryImpl struct {
	db     *bolt.DB
	logger zerolog.Logger
}

type rateRecord struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

type fiatRecord struct {
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func New(dm *database.DBManager, logger zerolog.Logger) IPreferenceRepository {
	return &preferenceRepositoryImpl{
		db:     dm.Db,
		logger: logger.With().Str("component", "preference_repo").Logger(),
	}
}

func (r *preferenceRepositoryImpl) LoadRate(ctx context.Context, symbol string) (domain.ExchangeRate, bool, error) {
	var rec rateRecord
	found, err := r.get(ctx, db.RatesBucket, db.RateKey(symbol), &rec)
	if err != nil || !found {
		return domain.ExchangeRate{}, false, err
	}
	if !rec.Rate.IsPositive() {
		r.logger.Warn().Str("symbol", symbol).Str("rate", rec.Rate.String()).Msg("Ignoring non-positive cached rate")
		return domain.ExchangeRate{}, false, nil
	}

	return domain.ExchangeRate{
		Rate:      rec.Rate,
		FetchedAt: rec.FetchedAt,
		Source:    domain.RateSourceCache,
	}, true, nil
}

func (r *preferenceRepositoryImpl) SaveRate(ctx context.Context, symbol string, rate domain.ExchangeRate) error {
	if !rate.Valid() {
		return fmt.Errorf("refusing to cache non-positive rate %s", rate.Rate)
	}
	return r.put(ctx, db.RatesBucket, db.RateKey(symbol), rateRecord{Rate: rate.Rate, FetchedAt: rate.FetchedAt})
}

func (r *preferenceRepositoryImpl) LoadFiatAmount(ctx context.Context, userID string) (decimal.Decimal, bool, error) {
	var rec fiatRecord
	found, err := r.get(ctx, db.PreferencesBucket, db.FiatKey(userID), &rec)
	if err != nil || !found {
		return decimal.Zero, false, err
	}
	return rec.Amount, true, nil
}

func (r *preferenceRepositoryImpl) SaveFiatAmount(ctx context.Context, userID string, amount decimal.Decimal) error {
	return r.put(ctx, db.PreferencesBucket, db.FiatKey(userID), fiatRecord{Amount: amount, UpdatedAt: time.Now().UTC()})
}

// get decodes the value at key into out. A corrupt value is logged and reported as absent.
func (r *preferenceRepositoryImpl) get(ctx context.Context, bucket, key []byte, out interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var raw []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		r.logger.Error().Err(err).Str("key", string(key)).Msg("Failed to read cache entry")
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if raw == nil {
		return false, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		r.logger.Warn().Err(err).Str("key", string(key)).Msg("Discarding corrupt cache entry")
		return false, nil
	}
	return true, nil
}

func (r *preferenceRepositoryImpl) put(ctx context.Context, bucket, key []byte, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	err = r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		r.logger.Error().Err(err).Str("key", string(key)).Msg("Failed to write cache entry")
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
