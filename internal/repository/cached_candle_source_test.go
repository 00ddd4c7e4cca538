package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedCandleSource_ReadThrough(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rc := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "finfeat")
	want := candlesFor("BTCUSDT", 3, 5*time.Minute)
	inner := &mockCandleSource{
		latestFn: func(_ context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
			return want, nil
		},
	}
	src := NewCachedCandleSource(inner, rc, time.Minute, nil)
	ctx := context.Background()

	first, err := src.GetLatestNCandles(ctx, "BTCUSDT", 3, domrepo.TF5m)
	require.NoError(t, err)
	second, err := src.GetLatestNCandles(ctx, "BTCUSDT", 3, domrepo.TF5m)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
	assert.True(t, mr.Exists("finfeat:candles:BTCUSDT:5m:n:3"))
	assert.Equal(t, time.Minute, mr.TTL("finfeat:candles:BTCUSDT:5m:n:3"))
}

func TestCachedCandleSource_RangeUsesDistinctKeys(t *testing.T) {
	t.Parallel()

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	all := candlesFor("ETHUSDT", 10, time.Hour)
	inner := &mockCandleSource{
		rangeFn: func(_ context.Context, _ string, from, to time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
			var out []models.Candle
			for _, c := range all {
				if !c.Bucket.Before(from) && !c.Bucket.After(to) {
					out = append(out, c)
				}
			}
			return out, nil
		},
	}
	src := NewCachedCandleSource(inner, mc, 0, nil)
	ctx := context.Background()

	a, err := src.GetCandles(ctx, "ETHUSDT", t0, t0.Add(2*time.Hour), domrepo.TF1h)
	require.NoError(t, err)
	b, err := src.GetCandles(ctx, "ETHUSDT", t0, t0.Add(4*time.Hour), domrepo.TF1h)
	require.NoError(t, err)

	assert.Len(t, a, 3)
	assert.Len(t, b, 5)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedCandleSource_InnerErrorNotCached(t *testing.T) {
	t.Parallel()

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	boom := errors.New("exchange down")
	inner := &mockCandleSource{
		latestFn: func(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
			return nil, boom
		},
	}
	src := NewCachedCandleSource(inner, mc, time.Minute, nil)

	_, err := src.GetLatestNCandles(context.Background(), "BTCUSDT", 5, domrepo.TF5m)
	assert.ErrorIs(t, err, boom)
	_, err = src.GetLatestNCandles(context.Background(), "BTCUSDT", 5, domrepo.TF5m)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedCandleSource_RedisFailureFallsBack(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	want := candlesFor("BTCUSDT", 2, 5*time.Minute)
	payload, err := json.Marshal(want)
	require.NoError(t, err)

	const key = "finfeat:candles:BTCUSDT:5m:n:2"
	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectDel(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, payload, time.Minute).SetErr(errors.New("connection refused"))

	inner := &mockCandleSource{
		latestFn: func(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
			return want, nil
		},
	}
	src := NewCachedCandleSource(inner, cache.NewRedisCacheFromClient(rdb, "finfeat"), time.Minute, nil)

	got, err := src.GetLatestNCandles(context.Background(), "BTCUSDT", 2, domrepo.TF5m)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedCandleSource_CorruptEntryReloaded(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	want := candlesFor("SOLUSDT", 1, time.Minute)
	payload, err := json.Marshal(want)
	require.NoError(t, err)

	const key = "finfeat:candles:SOLUSDT:1m:n:1"
	mock.ExpectGet(key).SetVal("not json")
	mock.ExpectDel(key).SetVal(1)
	mock.ExpectSet(key, payload, 5*time.Minute).SetVal("OK")

	inner := &mockCandleSource{
		latestFn: func(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
			return want, nil
		},
	}
	src := NewCachedCandleSource(inner, cache.NewRedisCacheFromClient(rdb, "finfeat"), 0, nil)

	got, err := src.GetLatestNCandles(context.Background(), "SOLUSDT", 1, domrepo.TF1m)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
