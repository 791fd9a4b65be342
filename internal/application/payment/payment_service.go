package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
)

type OpenSessionRequest struct {
	UserID     string          `json:"user_id" binding:"required"`
	FiatAmount decimal.Decimal `json:"fiat_amount"`
	PackageID  string          `json:"package_id"`
}

type IPaymentService interface {
	OpenSession(ctx context.Context, req OpenSessionRequest) (domain.Snapshot, error)
	SetFiatAmount(ctx context.Context, sessionID string, amount decimal.Decimal) (domain.Snapshot, error)
	Pay(ctx context.Context, sessionID string) (domain.Snapshot, error)
	GetSession(sessionID string) (domain.Snapshot, error)
	CloseSession(sessionID string) error
	Packages() []domain.Package
	Quote(fiat decimal.Decimal) (domain.Quote, error)
	// Run refreshes the shared quote rate and reaps finished sessions until ctx is done.
	Run(ctx context.Context) error
	Shutdown()
}
