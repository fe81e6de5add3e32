package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/metrics"
	"github.com/kinexbt/coin-yaps/internal/models"
)

// Default client configuration
const (
	DefaultBaseURL     = "https://api.dexscreener.com/latest/dex"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 250 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
	DefaultBackoffMult = 2.0
)

// provider pages are small; anything bigger is not a search result
const maxResponseBytes = 4 << 20

// DexScreener implements Provider over the DexScreener public API
type DexScreener struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	log         logrus.FieldLogger
}

// Option configures DexScreener
type Option func(*DexScreener)

// WithBaseURL points the client at another host, used by tests
func WithBaseURL(u string) Option {
	return func(d *DexScreener) {
		d.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(t time.Duration) Option {
	return func(d *DexScreener) {
		d.client.Timeout = t
	}
}

// WithMaxRetries sets how many times a failed request is retried
func WithMaxRetries(n int) Option {
	return func(d *DexScreener) {
		d.maxRetries = n
	}
}

// WithRetryDelay sets the initial delay between retries
func WithRetryDelay(t time.Duration) Option {
	return func(d *DexScreener) {
		d.retryDelay = t
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(d *DexScreener) {
		d.client = c
	}
}

// WithLogger sets the logger used for retry diagnostics
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *DexScreener) {
		d.log = log
	}
}

// NewDexScreener creates a DexScreener client
func NewDexScreener(opts ...Option) *DexScreener {
	d := &DexScreener{
		baseURL:     DefaultBaseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD string `json:"priceUsd"`
	Volume   struct {
		H24 decimal.Decimal `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 decimal.Decimal `json:"h24"`
	} `json:"priceChange"`
	Liquidity *struct {
		USD decimal.Decimal `json:"usd"`
	} `json:"liquidity"`
	FDV       decimal.NullDecimal `json:"fdv"`
	MarketCap decimal.NullDecimal `json:"marketCap"`
	Info      *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
}

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

func (p dexPair) attrs() (TokenAttrs, bool) {
	network, err := models.ParseNetwork(p.ChainID)
	if err != nil {
		return TokenAttrs{}, false
	}
	if p.BaseToken.Address == "" || p.BaseToken.Symbol == "" {
		return TokenAttrs{}, false
	}

	price, err := decimal.NewFromString(p.PriceUSD)
	if err != nil {
		price = decimal.Zero
	}

	marketCap := decimal.Zero
	switch {
	case p.MarketCap.Valid && !p.MarketCap.Decimal.IsZero():
		marketCap = p.MarketCap.Decimal
	case p.FDV.Valid:
		marketCap = p.FDV.Decimal
	}

	attrs := TokenAttrs{
		Symbol:         models.NormalizeSymbol(p.BaseToken.Symbol),
		Name:           strings.TrimSpace(p.BaseToken.Name),
		Address:        strings.TrimSpace(p.BaseToken.Address),
		Network:        network,
		Price:          price,
		MarketCap:      marketCap,
		Volume24h:      p.Volume.H24,
		PriceChange24h: p.PriceChange.H24,
	}
	if p.Liquidity != nil {
		attrs.Liquidity = p.Liquidity.USD
	}
	if p.Info != nil {
		attrs.Image = p.Info.ImageURL
	}
	return attrs, true
}

// rank keeps pairs on supported networks, best liquidity plus volume first
func rank(pairs []dexPair) []TokenAttrs {
	out := make([]TokenAttrs, 0, len(pairs))
	for _, p := range pairs {
		if a, ok := p.attrs(); ok {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score().GreaterThan(out[j].Score())
	})
	return out
}

// LookupByAddress returns the best pair whose base token is address
func (d *DexScreener) LookupByAddress(ctx context.Context, address string) (*TokenAttrs, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}

	resp, err := d.get(ctx, "lookup_address", "/tokens/"+url.PathEscape(address))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	// pairs where the address is only the quote side describe another token
	ranked := rank(resp.Pairs)
	for i := range ranked {
		if strings.EqualFold(ranked[i].Address, address) {
			return &ranked[i], nil
		}
	}
	return nil, nil
}

// LookupBySymbol returns the provider's candidates for symbol, ranked
func (d *DexScreener) LookupBySymbol(ctx context.Context, symbol string) ([]TokenAttrs, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, nil
	}

	resp, err := d.get(ctx, "lookup_symbol", "/search/?q="+url.QueryEscape(symbol))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return rank(resp.Pairs), nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("dexscreener returned status %d", e.code)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// get fetches path with retries and exponential backoff. A 404 yields a nil
// response and no error.
func (d *DexScreener) get(ctx context.Context, operation, path string) (*dexResponse, error) {
	start := time.Now()
	delay := d.retryDelay
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.observe(operation, "canceled", start)
				return nil, apperrors.ProviderUnavailable(ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * d.backoffMult)
			if delay > d.maxDelay {
				delay = d.maxDelay
			}
		}

		resp, err := d.do(ctx, path)
		if err == nil {
			status := "ok"
			if resp == nil {
				status = "not_found"
			}
			d.observe(operation, status, start)
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		d.log.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt + 1,
			"error":     err,
		}).Warn("dexscreener request failed, retrying")
	}

	d.observe(operation, "error", start)
	return nil, apperrors.ProviderUnavailable(lastErr)
}

func (d *DexScreener) do(ctx context.Context, path string) (*dexResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &statusError{code: resp.StatusCode}
	}

	var out dexResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, &statusError{code: http.StatusBadGateway}
	}
	if len(out.Pairs) == 0 {
		return nil, nil
	}
	return &out, nil
}

func (d *DexScreener) observe(operation, status string, start time.Time) {
	metrics.ProviderRequests.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}
