package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fxledger/internal/core"
)

// DefaultAPIURL is the PrivatBank archive endpoint for national bank rates.
const DefaultAPIURL = "https://api.privatbank.ua/p24api/exchange_rates"

type (
	// Response mirrors the exchange_rates payload.
	Response struct {
		Date            string  `json:"date"`
		Bank            string  `json:"bank"`
		BaseCurrency    int     `json:"baseCurrency"`
		BaseCurrencyLit string  `json:"baseCurrencyLit"`
		ExchangeRate    []Entry `json:"exchangeRate"`
	}

	// Entry is one currency line. SaleRateNB is the national bank rate; a nil
	// pointer means the field was absent.
	Entry struct {
		BaseCurrency   string   `json:"baseCurrency"`
		Currency       string   `json:"currency"`
		SaleRateNB     *float64 `json:"saleRateNB"`
		PurchaseRateNB *float64 `json:"purchaseRateNB"`
		SaleRate       *float64 `json:"saleRate,omitempty"`
		PurchaseRate   *float64 `json:"purchaseRate,omitempty"`
	}
)

// Source is the upstream rate lookup used by Fetcher.
type Source interface {
	Rates(ctx context.Context, date core.Date) (*Response, error)
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rates API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("rates API returned status %d: %s", e.StatusCode, e.Body)
}

// ClientConfig represents the configuration for the rates API client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration // Default: 10 seconds
	HTTPClient *http.Client
}

// PrivatBankClient queries the exchange_rates endpoint, directly or through
// the CORS proxy.
type PrivatBankClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ Source = (*PrivatBankClient)(nil)

// NewPrivatBankClient creates a new rates API client.
func NewPrivatBankClient(config ClientConfig) *PrivatBankClient {
	baseURL := strings.TrimSpace(config.BaseURL)
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &PrivatBankClient{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Rates fetches the rate table published for date.
func (c *PrivatBankClient) Rates(ctx context.Context, date core.Date) (*Response, error) {
	q := url.Values{}
	q.Set("date", date.APIString())
	// The API expects literal dots in the date, which Encode leaves as is.
	endpoint := c.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// ExtractRate picks the national bank sale rate for currency out of resp.
func ExtractRate(resp *Response, currency string, date core.Date) (float64, error) {
	if resp == nil || len(resp.ExchangeRate) == 0 {
		return 0, ErrNoRates
	}
	for _, e := range resp.ExchangeRate {
		if e.Currency != currency {
			continue
		}
		if e.SaleRateNB == nil {
			return 0, fmt.Errorf("%w: missing national bank rate for %s", ErrInvalidRate, currency)
		}
		if *e.SaleRateNB <= 0 {
			return 0, fmt.Errorf("%w (%v) for %s", ErrInvalidRate, *e.SaleRateNB, currency)
		}
		return *e.SaleRateNB, nil
	}
	return 0, fmt.Errorf("%w: %s on %s", ErrCurrencyNotFound, currency, date.APIString())
}
