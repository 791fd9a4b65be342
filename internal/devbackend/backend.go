// Package devbackend serves the purchase backend contract from memory so the gateway can
// run without the real backend. Dev-only routes let a tester simulate deposits.
package devbackend

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server/middleware"
)

type Backend struct {
	store  *Store
	apiKey string
	logger zerolog.Logger
}

// New builds the dev backend. A non-empty apiKey is required on every contract route.
func New(store *Store, apiKey string, logger zerolog.Logger) *Backend {
	return &Backend{
		store:  store,
		apiKey: apiKey,
		logger: logger.With().Str("component", "dev_backend").Logger(),
	}
}

// Router builds the gin engine serving the backend contract and the dev routes.
func (b *Backend) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewMiddleware(b.logger).RequestLogger())
	router.Use(middleware.APIKeyAuth(b.apiKey))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "devbackend"})
	})

	router.POST("/purchase", b.CreatePurchase)
	router.GET("/exchange-rate", b.ExchangeRate)
	router.GET("/purchase-status/:user_id/:address", b.PurchaseStatus)

	dev := router.Group("/dev")
	{
		dev.POST("/purchases/:address/detect", b.MarkDetected)
		dev.POST("/purchases/:address/credit", b.MarkCredited)
		dev.PUT("/exchange-rate", b.SetExchangeRate)
	}

	return router
}

func (b *Backend) CreatePurchase(c *gin.Context) {
	var req domain.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.CreatePurchaseResponse{Status: "error", Message: "Invalid: " + err.Error()})
		return
	}
	if req.UserID == "" || req.TokenAmount <= 0 {
		c.JSON(http.StatusOK, domain.CreatePurchaseResponse{Status: "error", Message: "userId and positive tokenAmount required"})
		return
	}

	p := b.store.Create(req.UserID, req.TokenAmount)
	b.logger.Info().
		Str("user_id", p.UserID).
		Str("deposit_address", p.DepositAddress).
		Int64("token_amount", p.TokenAmount).
		Str("required_crypto_amount", p.RequiredCryptoAmount.String()).
		Msg("Purchase created")

	c.JSON(http.StatusOK, domain.CreatePurchaseResponse{
		Status: domain.PurchaseStatusSuccess,
		PaymentInfo: &domain.PaymentInfo{
			DepositAddress:       p.DepositAddress,
			RequiredCryptoAmount: p.RequiredCryptoAmount,
			CryptoFiatPrice:      p.Rate,
		},
	})
}

func (b *Backend) ExchangeRate(c *gin.Context) {
	c.JSON(http.StatusOK, domain.ExchangeRateResponse{CryptoFiatPrice: b.store.Rate()})
}

func (b *Backend) PurchaseStatus(c *gin.Context) {
	p, ok := b.store.Get(c.Param("user_id"), c.Param("address"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
		return
	}
	c.JSON(http.StatusOK, domain.PurchaseStatusResponse{
		PurchaseStatus: domain.PurchaseStatus{
			PaymentDetected: p.PaymentDetected,
			TokensCredited:  p.TokensCredited,
		},
	})
}

// POST /dev/purchases/:address/detect
func (b *Backend) MarkDetected(c *gin.Context) {
	if !b.store.MarkDetected(c.Param("address")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
		return
	}
	b.logger.Info().Str("deposit_address", c.Param("address")).Msg("Deposit marked detected")
	c.JSON(http.StatusOK, gin.H{"status": "detected"})
}

// POST /dev/purchases/:address/credit
func (b *Backend) MarkCredited(c *gin.Context) {
	if !b.store.MarkCredited(c.Param("address")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
		return
	}
	b.logger.Info().Str("deposit_address", c.Param("address")).Msg("Tokens marked credited")
	c.JSON(http.StatusOK, gin.H{"status": "credited"})
}

// PUT /dev/exchange-rate {"cryptoFiatPrice": 150}
func (b *Backend) SetExchangeRate(c *gin.Context) {
	var req domain.ExchangeRateResponse
	if err := c.ShouldBindJSON(&req); err != nil || !req.CryptoFiatPrice.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "positive cryptoFiatPrice required"})
		return
	}
	b.store.SetRate(req.CryptoFiatPrice)
	c.JSON(http.StatusOK, domain.ExchangeRateResponse{CryptoFiatPrice: req.CryptoFiatPrice})
}

// DefaultRate is the rate the dev backend starts with.
var DefaultRate = decimal.NewFromInt(180)
