// Package twelvedata implements a quote source backed by the Twelve Data
// /price endpoint.
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

const defaultBaseURL = "https://api.twelvedata.com"

// Client fetches spot prices from Twelve Data. It performs a single request
// per call with no internal retries; callers own retry and caching policy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Twelve Data client. An empty baseURL selects the
// public API endpoint.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// priceResponse is the /price response envelope. On errors the endpoint
// still returns 200 with a message body instead of a price field.
type priceResponse struct {
	Price   string `json:"price"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Quote fetches the current price for a 6-letter pair code such as "EURUSD".
// Any provider failure, including a well-formed error body, is reported as
// domain.ErrQuoteUnavailable so callers can treat all outages uniformly.
func (c *Client) Quote(ctx context.Context, pair string) (domain.Quote, error) {
	symbol, err := ProviderSymbol(pair)
	if err != nil {
		return domain.Quote{}, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Quote{}, unavailable(pair, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, unavailable(pair, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Quote{}, unavailable(pair, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, unavailable(pair, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
	}

	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return domain.Quote{}, unavailable(pair, err)
	}
	if pr.Price == "" {
		if pr.Message != "" {
			return domain.Quote{}, unavailable(pair, fmt.Errorf("provider: %s", pr.Message))
		}
		return domain.Quote{}, unavailable(pair, fmt.Errorf("no price in response"))
	}

	price, err := strconv.ParseFloat(pr.Price, 64)
	if err != nil {
		return domain.Quote{}, unavailable(pair, fmt.Errorf("parse price %q: %v", pr.Price, err))
	}

	return domain.Quote{
		Pair:      domain.NormalizePair(pair),
		Price:     price,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// ProviderSymbol converts a 6-letter pair code into the "BASE/QUOTE" form
// the provider expects, e.g. "eurusd" -> "EUR/USD". Anything that fails
// domain.ValidatePair is rejected.
func ProviderSymbol(pair string) (string, error) {
	if err := domain.ValidatePair(pair); err != nil {
		return "", err
	}
	p := domain.NormalizePair(pair)
	return p[:3] + "/" + p[3:], nil
}

// unavailable wraps a provider failure so errors.Is matches
// domain.ErrQuoteUnavailable while the cause stays readable in logs.
func unavailable(pair string, cause error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrQuoteUnavailable, domain.NormalizePair(pair), cause)
}
