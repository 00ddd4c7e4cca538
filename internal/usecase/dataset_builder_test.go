package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/internal/services/features"
	"FinFeat/internal/services/labels"
	"FinFeat/pkg/config"
)

var buildTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func rampConfig(symbols ...string) BuildConfig {
	return BuildConfig{
		Family:      "ramp_5m",
		Type:        "lstm",
		Scheme:      "ramp",
		Timeframe:   domrepo.TF5m,
		Instruments: symbols,
		Candles:     200,
		Window:      10,
		NumFeatures: features.NumFeatures,
		LabelKind:   labels.KindFixed,
		Horizon:     1,
		Threshold:   0.002,
		TestRatio:   0.2,
		SplitSeed:   42,
	}
}

type builderFixture struct {
	src     *fakeSource
	store   *memStore
	pub     *recordingPublisher
	metrics *recordingMetrics
	b       *DatasetBuilder
}

func newBuilderFixture(t *testing.T, src *fakeSource) *builderFixture {
	t.Helper()
	f := &builderFixture{
		src:     src,
		store:   newMemStore(),
		pub:     &recordingPublisher{},
		metrics: newRecordingMetrics(),
	}
	f.b = NewDatasetBuilder(src, testRegistry(t), f.store, f.pub, f.metrics, nil,
		WithWorkers(2),
		WithClock(func() time.Time { return buildTime }),
	)
	return f
}

func twoGoodSources() *fakeSource {
	return &fakeSource{candles: map[string][]models.Candle{
		"BTCUSDT": waveCandles("BTCUSDT", 200, 5*time.Minute),
		"ETHUSDT": waveCandles("ETHUSDT", 200, 5*time.Minute),
	}}
}

func TestDatasetBuilder_Build(t *testing.T) {
	t.Parallel()

	src := twoGoodSources()
	src.candles["SOLUSDT"] = waveCandles("SOLUSDT", 11, 5*time.Minute)
	src.errs = map[string]error{"XRPUSDT": errors.New("exchange unavailable")}
	f := newBuilderFixture(t, src)

	res, err := f.b.Build(context.Background(), rampConfig("BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"))
	require.NoError(t, err)

	// 200 candles, window 10, horizon 1 -> 189 samples per instrument
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, res.Instruments)
	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT"}, res.Skipped)
	assert.Equal(t, 76, res.TestSamples)
	assert.Equal(t, 302, res.TrainSamples)
	assert.Equal(t, 378, res.Distribution.Total)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, 1, f.metrics.skipped[SkipInsufficientHistory])
	assert.Equal(t, 1, f.metrics.skipped[SkipFetch])
	total := 0
	for _, n := range f.metrics.samples {
		total += n
	}
	assert.Equal(t, 378, total)

	md := f.store.metadata["ramp_5m"]
	assert.Equal(t, "lstm", md.Type)
	assert.Equal(t, "5m", md.Timeframe)
	assert.Empty(t, md.PredictionHorizon)
	assert.Equal(t, 76, md.NumFeatures)
	assert.Equal(t, 3, md.NumClasses)
	assert.Equal(t, "ramp_5m_scaler.json", md.ScalerPath)
	assert.Equal(t, "2024-06-01T12:00:00Z", md.Date)
	assert.Equal(t, "ramp", md.FeatureScheme)
	assert.Len(t, md.FeatureNames, 76)
	assert.Equal(t, "close", md.FeatureNames[0])
	assert.Equal(t, 10, md.SequenceLength)
	assert.Equal(t, res.RunID, md.RunID)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, md.TrainedOn)
	assert.Zero(t, md.TestAccuracy)

	ds := f.store.datasets["ramp_5m"]
	require.NotNil(t, ds)
	require.Len(t, ds.XTrain, 302)
	require.Len(t, ds.YTest, 76)
	require.Len(t, ds.XTrain[0], 10)
	assert.Len(t, ds.XTrain[0][0], 76)

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, "ramp_5m", ev.Family)
	assert.Equal(t, "ramp_5m_metadata.json", ev.MetadataPath)
	assert.Equal(t, res.Skipped, ev.Skipped)
	assert.False(t, ev.Finalized)
	assert.Equal(t, buildTime.UnixMilli(), ev.Timestamp)
}

func TestDatasetBuilder_Build_StandardisesPooledRows(t *testing.T) {
	t.Parallel()

	f := newBuilderFixture(t, twoGoodSources())
	_, err := f.b.Build(context.Background(), rampConfig("BTCUSDT", "ETHUSDT"))
	require.NoError(t, err)

	ds := f.store.datasets["ramp_5m"]
	sum, n := 0.0, 0
	for _, split := range [][][][]float64{ds.XTrain, ds.XTest} {
		for _, w := range split {
			for _, row := range w {
				sum += row[0]
				n++
				assert.Zero(t, row[75], "padding column stays zero")
			}
		}
	}
	assert.InDelta(t, 0, sum/float64(n), 1e-9)

	st := f.store.scalers["ramp_5m"]
	assert.Len(t, st.Mean, 76)
	assert.Equal(t, 1.0, st.Std[75])
}

func TestDatasetBuilder_Build_Deterministic(t *testing.T) {
	t.Parallel()

	a := newBuilderFixture(t, twoGoodSources())
	b := newBuilderFixture(t, twoGoodSources())
	cfg := rampConfig("BTCUSDT", "ETHUSDT")

	_, err := a.b.Build(context.Background(), cfg)
	require.NoError(t, err)
	_, err = b.b.Build(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, a.store.datasets["ramp_5m"], b.store.datasets["ramp_5m"])
	assert.Equal(t, a.store.scalers["ramp_5m"], b.store.scalers["ramp_5m"])
}

func TestDatasetBuilder_Build_LabelPolicies(t *testing.T) {
	t.Parallel()

	t.Run("binary daily", func(t *testing.T) {
		t.Parallel()
		src := &fakeSource{candles: map[string][]models.Candle{
			"BTCUSDT": waveCandles("BTCUSDT", 200, 24*time.Hour),
		}}
		f := newBuilderFixture(t, src)
		cfg := rampConfig("BTCUSDT")
		cfg.Timeframe = domrepo.TF1d
		cfg.LabelKind = labels.KindBinary
		cfg.Horizon = 7

		res, err := f.b.Build(context.Background(), cfg)
		require.NoError(t, err)
		md := res.Metadata
		assert.Equal(t, "7 day(s)", md.PredictionHorizon)
		assert.Empty(t, md.Timeframe)
		assert.Equal(t, 2, md.NumClasses)
		assert.Equal(t, []string{"DOWN", "UP"}, md.ClassDistribution.Names)
	})

	t.Run("percentile is balanced", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(t, twoGoodSources())
		cfg := rampConfig("BTCUSDT", "ETHUSDT")
		cfg.LabelKind = labels.KindPercentile
		cfg.Horizon = 3

		res, err := f.b.Build(context.Background(), cfg)
		require.NoError(t, err)
		for _, r := range res.Distribution.Ratios {
			assert.InDelta(t, 1.0/3, r, 0.02)
		}
		assert.Empty(t, res.Metadata.Warnings)
	})
}

func TestDatasetBuilder_Build_SkipWarmup(t *testing.T) {
	t.Parallel()

	f := newBuilderFixture(t, twoGoodSources())
	cfg := rampConfig("BTCUSDT")
	cfg.SkipWarmup = true

	res, err := f.b.Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 188, res.Distribution.Total)
}

func TestDatasetBuilder_Build_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*BuildConfig)
		src     *fakeSource
		wantErr error
	}{
		{
			name:    "unknown scheme",
			mutate:  func(c *BuildConfig) { c.Scheme = "nope" },
			src:     twoGoodSources(),
			wantErr: features.ErrUnknownScheme,
		},
		{
			name:    "scheme width violation aborts",
			mutate:  func(c *BuildConfig) { c.Scheme = "rogue" },
			src:     twoGoodSources(),
			wantErr: features.ErrWidthMismatch,
		},
		{
			name:   "every fetch fails",
			mutate: func(c *BuildConfig) {},
			src: &fakeSource{errs: map[string]error{
				"BTCUSDT": errors.New("down"),
				"ETHUSDT": errors.New("down"),
			}},
			wantErr: ErrNoInstruments,
		},
		{
			name:    "min candles above history",
			mutate:  func(c *BuildConfig) { c.MinCandles = 500 },
			src:     twoGoodSources(),
			wantErr: ErrNoInstruments,
		},
		{
			name:    "unknown label kind",
			mutate:  func(c *BuildConfig) { c.LabelKind = "vibes" },
			src:     twoGoodSources(),
			wantErr: labels.ErrUnknownKind,
		},
		{
			name:    "no instruments configured",
			mutate:  func(c *BuildConfig) { c.Instruments = nil },
			src:     twoGoodSources(),
			wantErr: ErrNoInstruments,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newBuilderFixture(t, tt.src)
			cfg := rampConfig("BTCUSDT", "ETHUSDT")
			tt.mutate(&cfg)

			_, err := f.b.Build(context.Background(), cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.store.metadata)
			assert.Empty(t, f.store.datasets)
			assert.Empty(t, f.pub.events)
		})
	}
}

func TestDatasetBuilder_Build_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newBuilderFixture(t, twoGoodSources())
	f.pub.err = errors.New("broker down")

	res, err := f.b.Build(context.Background(), rampConfig("BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, 189, res.Distribution.Total)
	assert.Equal(t, 1, f.metrics.errors["publish"])
	assert.Contains(t, f.store.metadata, "ramp_5m")
}

func TestDatasetBuilder_BuildAll(t *testing.T) {
	t.Parallel()

	f := newBuilderFixture(t, twoGoodSources())
	good := rampConfig("BTCUSDT")
	bad := rampConfig("ETHUSDT")
	bad.Family = "rogue_5m"
	bad.Scheme = "rogue"
	later := rampConfig("ETHUSDT")
	later.Family = "later_5m"

	res, err := f.b.BuildAll(context.Background(), []BuildConfig{good, bad, later})
	require.Error(t, err)
	assert.ErrorIs(t, err, features.ErrWidthMismatch)
	require.Len(t, res, 2)
	assert.Equal(t, "ramp_5m", res[0].Family)
	assert.Equal(t, "later_5m", res[1].Family)
}

func TestSplitIndices(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		train, test := SplitIndices(0, 0.2, 42, false)
		assert.Empty(t, train)
		assert.Empty(t, test)
	})

	t.Run("single sample trains", func(t *testing.T) {
		train, test := SplitIndices(1, 0.2, 42, false)
		assert.Equal(t, []int{0}, train)
		assert.Empty(t, test)
	})

	t.Run("chronological keeps the tail for test", func(t *testing.T) {
		train, test := SplitIndices(10, 0.2, 42, true)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, train)
		assert.Equal(t, []int{8, 9}, test)
	})

	t.Run("shuffled is a seeded partition", func(t *testing.T) {
		train, test := SplitIndices(100, 0.2, 42, false)
		require.Len(t, test, 20)
		require.Len(t, train, 80)

		seen := make(map[int]bool, 100)
		for _, i := range append(append([]int(nil), train...), test...) {
			assert.False(t, seen[i], "index %d repeated", i)
			seen[i] = true
		}
		assert.Len(t, seen, 100)

		train2, test2 := SplitIndices(100, 0.2, 42, false)
		assert.Equal(t, train, train2)
		assert.Equal(t, test, test2)

		_, other := SplitIndices(100, 0.2, 7, false)
		assert.NotEqual(t, test, other)
	})
}

func TestQualityWarnings(t *testing.T) {
	t.Parallel()

	clean := models.ModelMetadata{
		TestAccuracy:      0.61,
		ClassDistribution: models.ClassDistribution{Names: []string{"SELL", "HOLD", "BUY"}, Ratios: []float64{0.3, 0.4, 0.3}},
	}
	assert.Empty(t, QualityWarnings(clean))

	suspicious := models.ModelMetadata{
		TestAccuracy:      0.97,
		ClassDistribution: models.ClassDistribution{Names: []string{"SELL", "HOLD", "BUY"}, Ratios: []float64{0.1, 0.8, 0.1}},
	}
	w := QualityWarnings(suspicious)
	require.Len(t, w, 2)
	assert.Contains(t, w[0], "leakage")
	assert.Contains(t, w[1], "HOLD")
}

func TestBuildConfigFor(t *testing.T) {
	t.Parallel()

	p := config.Pipeline{Window: 60, NumFeatures: 76, TestRatio: 0.2, SplitSeed: 42, SkipWarmup: true}
	fam := config.Family{
		Name: "general_15m", Scheme: "general", Timeframe: "15m", Candles: 3000,
		Instruments: []string{"BTCUSDT"},
		Label:       config.Label{Kind: "percentile", Horizon: 3},
	}

	cfg := BuildConfigFor(p, fam)
	assert.Equal(t, "general_15m", cfg.Type)
	assert.Equal(t, domrepo.TF15m, cfg.Timeframe)
	assert.Equal(t, 60, cfg.Window)
	assert.Equal(t, 3, cfg.Horizon)
	assert.True(t, cfg.SkipWarmup)

	cfg.Instruments[0] = "ETHUSDT"
	assert.Equal(t, "BTCUSDT", fam.Instruments[0])
}
