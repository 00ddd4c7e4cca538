package repository

import (
	"context"
	"time"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func candlesFor(symbol string, n int, step time.Duration) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * step),
			Symbol: symbol,
			Open:   p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 10,
		}
	}
	return out
}

// mockCandleSource counts calls and delegates to fn fields.
type mockCandleSource struct {
	latestFn func(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error)
	rangeFn  func(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error)
	calls    int
}

func (m *mockCandleSource) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	m.calls++
	return m.latestFn(ctx, symbol, n, tf)
}

func (m *mockCandleSource) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	m.calls++
	return m.rangeFn(ctx, symbol, from, to, tf)
}
