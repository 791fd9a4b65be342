package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
)

// PurchaseAPI defines the backend contract the payment controller depends on
type PurchaseAPI interface {
	// CreatePurchase registers a purchase and returns its payment descriptor
	CreatePurchase(ctx context.Context, req domain.CreatePurchaseRequest) (*domain.PaymentInfo, error)

	// GetExchangeRate returns the current fiat price of one crypto unit
	GetExchangeRate(ctx context.Context) (decimal.Decimal, error)

	// GetPurchaseStatus reports whether a deposit was seen and credited
	GetPurchaseStatus(ctx context.Context, userID, depositAddress string) (domain.PurchaseStatus, error)
}

// SessionNotifier receives session updates for delivery to the user's connections
type SessionNotifier interface {
	SessionUpdated(snapshot domain.Snapshot)
	SessionCompleted(completion domain.Completion)
}
