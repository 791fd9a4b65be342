package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/internal/domain/interfaces"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
)

type purchaseAPIClient struct {
	apiKey     string
	httpClient *resty.Client
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// errClient marks 4xx responses, which are never retried.
var errClient = errors.New("client error")

func NewPurchaseAPIClient(cfg config.BackendConfig, logger zerolog.Logger) interfaces.PurchaseAPI {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetTransport(&http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 10,
		})

	return &purchaseAPIClient{
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With().Str("component", "purchase_api_client").Logger(),
	}
}

// CreatePurchase is sent once; a retry could register a second purchase.
func (c *purchaseAPIClient) CreatePurchase(ctx context.Context, req domain.CreatePurchaseRequest) (*domain.PaymentInfo, error) {
	var response domain.CreatePurchaseResponse
	if err := c.do(ctx, http.MethodPost, "/purchase", req, &response); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDescriptorCreation, err)
	}

	if response.Status != domain.PurchaseStatusSuccess {
		msg := response.Message
		if msg == "" {
			msg = "status " + response.Status
		}
		return nil, fmt.Errorf("%w: backend rejected purchase: %s", domain.ErrDescriptorCreation, msg)
	}

	info := response.PaymentInfo
	if info == nil || info.DepositAddress == "" || !info.RequiredCryptoAmount.IsPositive() {
		return nil, fmt.Errorf("%w: incomplete payment info", domain.ErrDescriptorCreation)
	}

	return info, nil
}

func (c *purchaseAPIClient) GetExchangeRate(ctx context.Context) (decimal.Decimal, error) {
	var response domain.ExchangeRateResponse
	if err := c.makeRequestWithRetry(ctx, "/exchange-rate", &response); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", domain.ErrRateFetch, err)
	}

	if !response.CryptoFiatPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", domain.ErrRateFetch, response.CryptoFiatPrice)
	}

	return response.CryptoFiatPrice, nil
}

// GetPurchaseStatus makes a single attempt; the poller's next tick is the retry.
func (c *purchaseAPIClient) GetPurchaseStatus(ctx context.Context, userID, depositAddress string) (domain.PurchaseStatus, error) {
	endpoint := fmt.Sprintf("/purchase-status/%s/%s", url.PathEscape(userID), url.PathEscape(depositAddress))

	var response domain.PurchaseStatusResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return domain.PurchaseStatus{}, fmt.Errorf("%w: %w", domain.ErrPoll, err)
	}

	return response.PurchaseStatus, nil
}

// makeRequestWithRetry makes a GET request with exponential backoff on transport and 5xx errors
func (c *purchaseAPIClient) makeRequestWithRetry(ctx context.Context, endpoint string, response interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		lastErr = c.do(ctx, http.MethodGet, endpoint, nil, response)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errClient) || ctx.Err() != nil {
			return lastErr
		}

		c.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Str("endpoint", endpoint).Msg("Backend request failed, retrying")
	}

	c.logger.Error().Err(lastErr).Str("endpoint", endpoint).Int("max_retries", c.maxRetries).Msg("Backend request failed after all retries")
	return fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *purchaseAPIClient) do(ctx context.Context, method, endpoint string, body interface{}, response interface{}) error {
	req := c.httpClient.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if c.apiKey != "" {
		req.SetHeader("X-API-Key", c.apiKey)
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	respBody := resp.Body()
	if resp.IsSuccess() {
		if response != nil {
			if err := json.Unmarshal(respBody, response); err != nil {
				return fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}
		return nil
	}

	if resp.StatusCode() >= 500 {
		return fmt.Errorf("server error (status %d): %s", resp.StatusCode(), handleErrorBody(respBody))
	}

	return fmt.Errorf("%w (status %d): %s", errClient, resp.StatusCode(), handleErrorBody(respBody))
}

func handleErrorBody(body []byte) string {
	var errorResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if errorResp.Error != "" {
			return errorResp.Error
		}
		if errorResp.Message != "" {
			return errorResp.Message
		}
	}
	return string(body)
}
