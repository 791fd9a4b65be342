package domain

import "github.com/shopspring/decimal"

// Wire shapes of the purchase backend.

type CreatePurchaseRequest struct {
	UserID      string `json:"userId"`
	TokenAmount int64  `json:"tokenAmount"`
}

type PaymentInfo struct {
	DepositAddress       string          `json:"depositAddress"`
	RequiredCryptoAmount decimal.Decimal `json:"requiredCryptoAmount"`
	CryptoFiatPrice      decimal.Decimal `json:"cryptoFiatPrice"`
}

type CreatePurchaseResponse struct {
	Status      string       `json:"status"`
	Message     string       `json:"message,omitempty"`
	PaymentInfo *PaymentInfo `json:"paymentInfo,omitempty"`
}

type ExchangeRateResponse struct {
	CryptoFiatPrice decimal.Decimal `json:"cryptoFiatPrice"`
}

type PurchaseStatusResponse struct {
	PurchaseStatus PurchaseStatus `json:"purchaseStatus"`
}

const PurchaseStatusSuccess = "success"
