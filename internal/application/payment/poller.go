package payment

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/internal/domain/interfaces"
)

// StatusPoller queries the purchase status for one deposit address. At most one query
// is in flight; a tick that arrives meanwhile is skipped, not queued.
type StatusPoller struct {
	api            interfaces.PurchaseAPI
	userID         string
	depositAddress string
	inFlight       atomic.Bool
	logger         zerolog.Logger
}

func NewStatusPoller(api interfaces.PurchaseAPI, userID, depositAddress string, logger zerolog.Logger) *StatusPoller {
	return &StatusPoller{
		api:            api,
		userID:         userID,
		depositAddress: depositAddress,
		logger:         logger.With().Str("component", "status_poller").Str("deposit_address", depositAddress).Logger(),
	}
}

// Poll runs one status query. ran is false when another query was still in flight.
func (p *StatusPoller) Poll(ctx context.Context) (status domain.PurchaseStatus, ran bool, err error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug().Msg("Previous poll still in flight, skipping tick")
		return domain.PurchaseStatus{}, false, nil
	}
	defer p.inFlight.Store(false)

	status, err = p.api.GetPurchaseStatus(ctx, p.userID, p.depositAddress)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("Purchase status poll failed")
		}
		return domain.PurchaseStatus{}, true, err
	}

	return status, true, nil
}

// InFlight reports whether a query is outstanding.
func (p *StatusPoller) InFlight() bool {
	return p.inFlight.Load()
}

// phaseFor maps a poll result to the phase it signals. Credit wins over detection.
func phaseFor(status domain.PurchaseStatus) (domain.SessionPhase, bool) {
	switch {
	case status.TokensCredited:
		return domain.PhaseCompleted, true
	case status.PaymentDetected:
		return domain.PhaseProcessing, true
	default:
		return "", false
	}
}
