package binance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/internal/service/metrics"
	"FinFeat/internal/service/ratelimit"
	xhttp "FinFeat/pkg/http"
	applogger "FinFeat/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	source      = "binance"
	klinesPath  = "/api/v3/klines"
	maxPageSize = 1000

	codeInvalidSymbol = -1121
)

var (
	// ErrUnknownSymbol is returned when the exchange rejects the symbol.
	ErrUnknownSymbol = errors.New("binance: unknown symbol")
	ErrMalformed     = errors.New("binance: malformed klines payload")
)

// Config controls paging, pacing and retries.
type Config struct {
	BaseURL    string
	Limit      int
	Batches    int
	Pause      time.Duration
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	RateLimit  float64
	Burst      int
}

func (c *Config) normalize() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.binance.com"
	}
	if c.Limit <= 0 || c.Limit > maxPageSize {
		c.Limit = maxPageSize
	}
	if c.Batches <= 0 {
		c.Batches = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
}

// Client downloads klines from the Binance REST API.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	l       *applogger.Logger
}

// Option configures Client.
type Option func(*Client)

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.l = l.With(source) }
}

// WithLimiter shares a rate limiter across clients.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a Binance klines client.
func New(cfg Config, opts ...Option) *Client {
	cfg.normalize()
	c := &Client{
		cfg:     cfg,
		http:    xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		limiter: ratelimit.New(),
		l:       applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	metrics.Register()
	return c
}

// Klines fetches one page of candles ending at or before endTime (zero means now).
func (c *Client) Klines(ctx context.Context, symbol string, tf domrepo.Timeframe, endTime time.Time, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	q := map[string][]string{
		"symbol":   {symbol},
		"interval": {string(tf)},
		"limit":    {strconv.Itoa(limit)},
	}
	if !endTime.IsZero() {
		q["endTime"] = []string{strconv.FormatInt(endTime.UnixMilli(), 10)}
	}
	opts := &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + klinesPath,
		QueryParams: q,
	}

	var body []byte
	var err error
	for i := 1; i <= c.cfg.MaxRetries; i++ {
		if err = c.limiter.Wait(ctx, source, float64(c.cfg.Burst), c.cfg.RateLimit); err != nil {
			return nil, err
		}
		err = c.http.SendAndParse(ctx, opts, &body)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err = classify(err); !retryable(err) || i == c.cfg.MaxRetries {
			return nil, fmt.Errorf("klines %s %s: %w", symbol, tf, err)
		}
		metrics.FetchRetries.WithLabelValues(source).Inc()
		c.l.Warn("klines retry",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("attempt", i),
			applogger.Error(err),
		)
		select {
		case <-time.After(time.Duration(i) * c.cfg.Backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	candles, err := parseKlines(symbol, body)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, tf, err)
	}
	return candles, nil
}

// GetLatestNCandles pages backwards from now until n candles are collected,
// the exchange runs out of history, or the batch budget is spent.
func (c *Client) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	pages := (n + c.cfg.Limit - 1) / c.cfg.Limit
	if pages > c.cfg.Batches {
		pages = c.cfg.Batches
	}
	out, err := c.pageBack(ctx, symbol, tf, time.Time{}, pages, func(first models.Candle, total int) bool {
		return total >= n
	})
	if err != nil {
		return nil, err
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// GetCandles returns candles with from <= open time <= to.
func (c *Client) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	if to.Before(from) {
		return nil, nil
	}
	span := int(to.Sub(from)/tf.Duration()) + 1
	pages := (span + c.cfg.Limit - 1) / c.cfg.Limit
	out, err := c.pageBack(ctx, symbol, tf, to, pages, func(first models.Candle, _ int) bool {
		return !first.Bucket.After(from)
	})
	if err != nil {
		return nil, err
	}
	lo := sort.Search(len(out), func(i int) bool { return !out[i].Bucket.Before(from) })
	hi := sort.Search(len(out), func(i int) bool { return out[i].Bucket.After(to) })
	return out[lo:hi], nil
}

func (c *Client) pageBack(ctx context.Context, symbol string, tf domrepo.Timeframe, end time.Time, pages int, done func(first models.Candle, total int) bool) ([]models.Candle, error) {
	var all []models.Candle
	for p := 0; p < pages; p++ {
		if p > 0 && c.cfg.Pause > 0 {
			select {
			case <-time.After(c.cfg.Pause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		page, err := c.Klines(ctx, symbol, tf, end, c.cfg.Limit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(page, all...)
		end = page[0].Bucket.Add(-time.Millisecond)
		if done(page[0], len(all)) {
			break
		}
	}
	out := dedupSorted(all)
	c.l.Debug("klines downloaded",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("candles", len(out)),
	)
	return out, nil
}

// dedupSorted sorts by open time and keeps the last candle per open time.
func dedupSorted(in []models.Candle) []models.Candle {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Bucket.Before(in[j].Bucket) })
	out := in[:0]
	for _, c := range in {
		if n := len(out); n > 0 && out[n-1].Bucket.Equal(c.Bucket) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

func parseKlines(symbol string, body []byte) ([]models.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformed
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, ErrMalformed
	}
	rows := root.Array()
	out := make([]models.Candle, 0, len(rows))
	for i, r := range rows {
		f := r.Array()
		if len(f) < 6 {
			return nil, fmt.Errorf("%w: row %d has %d fields", ErrMalformed, i, len(f))
		}
		c := models.Candle{
			Bucket: time.UnixMilli(f[0].Int()).UTC(),
			Symbol: symbol,
		}
		for j, dst := range [...]*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
			d, err := decimal.NewFromString(f[j+1].String())
			if err != nil {
				return nil, fmt.Errorf("%w: row %d field %d: %v", ErrMalformed, i, j+1, err)
			}
			*dst = d.InexactFloat64()
		}
		out = append(out, c)
	}
	return out, nil
}

// classify maps an exchange error body to a sentinel where one applies.
func classify(err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) && gjson.GetBytes(se.Body, "code").Int() == codeInvalidSymbol {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, gjson.GetBytes(se.Body, "msg").String())
	}
	return err
}

// retryable reports whether err is worth another attempt: throttling,
// server errors and transport failures are; other 4xx responses are not.
func retryable(err error) bool {
	if errors.Is(err, ErrUnknownSymbol) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

var _ domrepo.CandleSource = (*Client)(nil)
