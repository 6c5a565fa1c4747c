package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"CoinCast/internal/domain/models"
	drepo "CoinCast/internal/domain/repository"
	xhttp "CoinCast/pkg/http"
	applogger "CoinCast/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	PublicBaseURL = "https://api.coingecko.com/api/v3"
	ProBaseURL    = "https://pro-api.coingecko.com/api/v3"

	apiKeyHeader = "x-cg-pro-api-key"

	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
	maxRetryAfter     = 30 * time.Second
)

// Config holds client settings.
type Config struct {
	BaseURLs   []string
	APIKey     string
	Timeout    time.Duration
	RatePerMin int
	MaxRetries int
	VsCurrency string
}

// Client fetches market data from CoinGecko.
// It implements HistoryProvider and PriceProvider.
type Client struct {
	http       *xhttp.Client
	baseURLs   []string
	current    atomic.Int64
	apiKey     string
	vsCurrency string
	maxRetries int
	limiter    *rate.Limiter
	metrics    drepo.Metrics
	log        *applogger.Logger

	initialDelay time.Duration
}

var (
	_ drepo.HistoryProvider = (*Client)(nil)
	_ drepo.PriceProvider   = (*Client)(nil)
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport client.
func WithHTTPClient(c *xhttp.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithInitialRetryDelay shortens the first backoff interval.
func WithInitialRetryDelay(d time.Duration) Option {
	return func(cl *Client) { cl.initialDelay = d }
}

// New creates a client. Missing settings fall back to the public API without a key.
func New(cfg Config, m drepo.Metrics, l *applogger.Logger, opts ...Option) *Client {
	urls := cfg.BaseURLs
	if len(urls) == 0 {
		urls = []string{PublicBaseURL}
		if cfg.APIKey != "" {
			urls = append(urls, ProBaseURL)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 30
	}
	vs := cfg.VsCurrency
	if vs == "" {
		vs = "usd"
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	if l == nil {
		l = applogger.NewNop()
	}

	c := &Client{
		http:         xhttp.NewClient(xhttp.WithTimeout(timeout)),
		baseURLs:     urls,
		apiKey:       cfg.APIKey,
		vsCurrency:   vs,
		maxRetries:   retries,
		limiter:      rate.NewLimiter(rate.Limit(float64(perMin)/60.0), max(1, perMin/10)),
		metrics:      m,
		log:          l,
		initialDelay: initialRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type marketChartResponse struct {
	Prices models.PriceSeries `json:"prices"`
}

// GetHistory returns the last `days` days of prices ending now.
func (c *Client) GetHistory(ctx context.Context, coinID string, days int, interval models.Interval) (models.PriceSeries, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive, got %d", models.ErrInvalidRange, days)
	}
	q := map[string][]string{
		"vs_currency": {c.vsCurrency},
		"days":        {strconv.Itoa(days)},
	}
	// Granularity is automatic for short ranges; only force daily buckets.
	if interval == models.IntervalDaily {
		q["interval"] = []string{"daily"}
	}

	var body marketChartResponse
	err := c.get(ctx, "market_chart", "/coins/"+coinID+"/market_chart", q, &body)
	c.record("market_chart", err)
	if err != nil {
		return nil, err
	}

	series := body.Prices.Normalize()
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no prices for %s over %d days", models.ErrUpstreamData, coinID, days)
	}
	return series, nil
}

// GetCurrentPrice returns the spot price of a coin.
func (c *Client) GetCurrentPrice(ctx context.Context, coinID, currency string) (float64, error) {
	if currency == "" {
		currency = c.vsCurrency
	}
	currency = strings.ToLower(currency)
	q := map[string][]string{
		"ids":           {coinID},
		"vs_currencies": {currency},
	}

	var body map[string]map[string]float64
	err := c.get(ctx, "simple_price", "/simple/price", q, &body)
	c.record("simple_price", err)
	if err != nil {
		return 0, err
	}

	price, ok := body[coinID][currency]
	if !ok {
		return 0, fmt.Errorf("%w: no %s price for %s", models.ErrUpstreamData, currency, coinID)
	}
	return price, nil
}

// get performs a rate-limited GET with retries. A failed attempt advances to the next base URL.
func (c *Client) get(ctx context.Context, op, path string, query map[string][]string, dest interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialDelay
	bo.MaxInterval = maxRetryDelay
	bo.MaxElapsedTime = 0

	var raw []byte
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		idx := int(c.current.Load()) % len(c.baseURLs)
		headers := map[string]string{"Accept": "application/json"}
		if c.apiKey != "" {
			headers[apiKeyHeader] = c.apiKey
		}

		err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      http.MethodGet,
			URL:         c.baseURLs[idx] + path,
			Headers:     headers,
			QueryParams: query,
		}, &raw)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		var se *xhttp.StatusError
		if errors.As(err, &se) {
			if se.Code == http.StatusTooManyRequests {
				if wait := parseRetryAfter(se.RetryAfter); wait > 0 {
					c.log.Warn("coingecko rate limited", applogger.String("op", op), applogger.Duration("retry_after", wait))
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						return backoff.Permanent(ctx.Err())
					}
				}
				return err
			}
			if !se.Temporary() {
				return backoff.Permanent(err)
			}
		}

		c.rotate(idx)
		c.log.Warn("coingecko request failed",
			applogger.String("op", op),
			applogger.Int("attempt", attempt),
			applogger.Error(err),
		)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return classify(op, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: decode %s: %v", models.ErrUpstreamData, op, err)
	}
	return nil
}

func (c *Client) rotate(from int) {
	if len(c.baseURLs) > 1 {
		c.current.CompareAndSwap(int64(from), int64((from+1)%len(c.baseURLs)))
	}
}

func (c *Client) record(op string, err error) {
	if c.metrics != nil {
		c.metrics.RecordUpstream(op, err)
	}
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", models.ErrUpstreamTimeout, op, err)
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s: unknown coin", models.ErrUpstreamData, op)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrUpstreamData, op, err)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}
