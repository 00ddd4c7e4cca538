package repository

import (
	"context"
	"errors"
	"time"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/pkg/cache"
	applogger "FinFeat/pkg/logger"
)

// CachedCandleSource decorates a CandleSource with a read-through cache.
// Cache failures never fail a read.
type CachedCandleSource struct {
	inner     domrepo.CandleSource
	cache     cache.Service
	ttl       time.Duration
	namespace string
	l         *applogger.Logger
}

// NewCachedCandleSource wraps inner. A zero ttl defaults to 5 minutes.
func NewCachedCandleSource(inner domrepo.CandleSource, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedCandleSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedCandleSource{inner: inner, cache: c, ttl: ttl, namespace: "candles", l: l}
}

func (s *CachedCandleSource) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	key := cache.Key(s.namespace, symbol, tf, "n", n)
	return s.readThrough(ctx, key, func() ([]models.Candle, error) {
		return s.inner.GetLatestNCandles(ctx, symbol, n, tf)
	})
}

func (s *CachedCandleSource) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	key := cache.Key(s.namespace, symbol, tf, from.UnixMilli(), to.UnixMilli())
	return s.readThrough(ctx, key, func() ([]models.Candle, error) {
		return s.inner.GetCandles(ctx, symbol, from, to, tf)
	})
}

func (s *CachedCandleSource) readThrough(ctx context.Context, key string, load func() ([]models.Candle, error)) ([]models.Candle, error) {
	var out []models.Candle
	err := s.cache.Get(ctx, key, &out)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("candle cache read failed", applogger.String("key", key), applogger.Error(err))
		// corrupted or unreachable; drop the entry best effort
		_ = s.cache.Delete(ctx, key)
	}

	out, err = load()
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		if err := s.cache.Set(ctx, key, out, s.ttl); err != nil {
			s.l.Warn("candle cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return out, nil
}

var _ domrepo.CandleSource = (*CachedCandleSource)(nil)
