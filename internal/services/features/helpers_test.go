package features

import (
	"math/rand"
	"time"

	"FinFeat/internal/domain/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func constantCandles(n int, price, volume float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * 5 * time.Minute),
			Symbol: "TESTUSDT",
			Open:   price, High: price, Low: price, Close: price, Volume: volume,
		}
	}
	return out
}

// walkCandles is a seeded random walk with realistic candle geometry.
func walkCandles(n int, seed int64) []models.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		closePx := open * (1 + (rng.Float64()-0.5)*0.02)
		high := max(open, closePx) * (1 + rng.Float64()*0.005)
		low := min(open, closePx) * (1 - rng.Float64()*0.005)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * 5 * time.Minute),
			Symbol: "TESTUSDT",
			Open:   open, High: high, Low: low, Close: closePx,
			Volume: 1000 + rng.Float64()*500,
		}
		price = closePx
	}
	return out
}
