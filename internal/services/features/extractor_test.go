package features

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinFeat/internal/domain/models"
)

func allSchemes(t *testing.T) *Registry {
	t.Helper()
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	return reg
}

func column(t *testing.T, ex *Extractor, m models.FeatureMatrix, name string) []float64 {
	t.Helper()
	idx := -1
	for i, n := range ex.Names() {
		if n == name {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0, "column %s", name)
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = row[idx]
	}
	return out
}

func requireFinite(t *testing.T, m models.FeatureMatrix) {
	t.Helper()
	for i, row := range m {
		require.Len(t, row, NumFeatures, "row %d", i)
		for j, v := range row {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "row %d col %d = %v", i, j, v)
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := allSchemes(t)
	assert.Equal(t, []string{"daily", "general", "pattern", "short_horizon"}, reg.Names())

	for _, name := range reg.Names() {
		ex, err := reg.Extractor(name)
		require.NoError(t, err)
		names := ex.Names()
		assert.Len(t, names, NumFeatures, name)

		seen := map[string]bool{}
		for _, n := range names {
			assert.False(t, seen[n], "%s: duplicate %s", name, n)
			seen[n] = true
		}
	}

	_, err := reg.Extractor("nope")
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestSchemeLayouts(t *testing.T) {
	reg := allSchemes(t)

	short, _ := reg.Extractor("short_horizon")
	names := short.Names()
	assert.Equal(t, []string{"open", "high", "low", "close", "volume"}, names[:5])
	assert.Equal(t, "engulfing_bear", names[54])
	assert.Equal(t, "pattern_6", names[55])
	assert.Equal(t, "pattern_26", names[75])

	general, _ := reg.Extractor("general")
	assert.Equal(t, "volume_price_trend", general.Names()[59])
	assert.Equal(t, "pad_60", general.Names()[60])
	assert.Equal(t, "pad_75", general.Names()[75])

	daily, _ := reg.Extractor("daily")
	assert.Equal(t, "spread", daily.Names()[58])
	assert.Equal(t, "pad_59", daily.Names()[59])

	pattern, _ := reg.Extractor("pattern")
	assert.Equal(t, "f0", pattern.Names()[0])
	assert.Equal(t, "f75", pattern.Names()[75])

	assert.Equal(t, 100, short.WarmUp())
	assert.Equal(t, 50, general.WarmUp())
	assert.Equal(t, 252, daily.WarmUp())
	assert.Equal(t, 200, pattern.WarmUp())
}

func TestExtract_ConstantPrices(t *testing.T) {
	candles := constantCandles(200, 100, 10)
	reg := allSchemes(t)

	for _, name := range reg.Names() {
		t.Run(name, func(t *testing.T) {
			ex, err := reg.Extractor(name)
			require.NoError(t, err)
			m, err := ex.Extract(candles)
			require.NoError(t, err)
			require.Len(t, m, 200)
			requireFinite(t, m)
		})
	}

	short, _ := reg.Extractor("short_horizon")
	m, err := short.Extract(candles)
	require.NoError(t, err)
	last := len(m) - 1
	for _, rsiCol := range []string{"rsi_7", "rsi_14", "rsi_21"} {
		assert.Equal(t, 0.0, column(t, short, m, rsiCol)[last], rsiCol)
	}
	assert.Equal(t, 0.0, column(t, short, m, "atr_14")[last])
	assert.Equal(t, 1.0, column(t, short, m, "doji")[last])

	hist := column(t, short, m, "macd_hist")
	for i := range hist {
		require.Equal(t, 0.0, hist[i], "macd_hist row %d", i)
	}
	for _, p := range []int{5, 10, 20, 50, 100} {
		ema := column(t, short, m, fmt.Sprintf("ema_%d", p))
		for i := short.WarmUp(); i < len(m); i++ {
			require.Equal(t, 100.0, ema[i], "ema_%d row %d", p, i)
		}
	}

	pattern, _ := reg.Extractor("pattern")
	pm, err := pattern.Extract(candles)
	require.NoError(t, err)
	assert.Equal(t, 0.0, column(t, pattern, pm, "f30")[last], "rsi")
	assert.Equal(t, 0.0, column(t, pattern, pm, "f44")[last], "atr")
	phist := column(t, pattern, pm, "f35")
	for i := range phist {
		require.Equal(t, 0.0, phist[i], "pattern macd hist row %d", i)
	}
}

func TestExtract_RandomWalkFinite(t *testing.T) {
	candles := walkCandles(400, 11)
	reg := allSchemes(t)
	for _, name := range reg.Names() {
		ex, _ := reg.Extractor(name)
		m, err := ex.Extract(candles)
		require.NoError(t, err, name)
		requireFinite(t, m)
	}
}

func TestExtract_PaddingIsZero(t *testing.T) {
	reg := allSchemes(t)
	ex, _ := reg.Extractor("general")
	m, err := ex.Extract(walkCandles(120, 3))
	require.NoError(t, err)
	for _, row := range m {
		for _, v := range row[60:] {
			assert.Equal(t, 0.0, v)
		}
	}
}

func TestExtract_Deterministic(t *testing.T) {
	candles := walkCandles(300, 5)
	reg := allSchemes(t)
	for _, name := range reg.Names() {
		ex, _ := reg.Extractor(name)
		a, err := ex.Extract(candles)
		require.NoError(t, err)
		b, err := ex.Extract(candles)
		require.NoError(t, err)
		assert.Equal(t, a, b, name)
	}
}

// Every row must depend only on candles up to and including its own.
func TestExtract_Causal(t *testing.T) {
	candles := walkCandles(360, 9)
	prefix := 300
	reg := allSchemes(t)
	for _, name := range reg.Names() {
		ex, _ := reg.Extractor(name)
		full, err := ex.Extract(candles)
		require.NoError(t, err)
		part, err := ex.Extract(candles[:prefix])
		require.NoError(t, err)
		for i := 0; i < prefix; i++ {
			require.InDeltaSlice(t, part[i], full[i], 1e-9, "%s row %d", name, i)
		}
	}
}

func TestExtract_Empty(t *testing.T) {
	ex, err := NewExtractor(ShortHorizon{})
	require.NoError(t, err)
	m, err := ex.Extract(nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

type stubScheme struct {
	names []string
	cols  func(n int) map[string][]float64
}

func (s stubScheme) Name() string    { return "stub" }
func (s stubScheme) Names() []string { return s.names }
func (s stubScheme) WarmUp() int     { return 0 }
func (s stubScheme) Compute(in models.Series) (map[string][]float64, error) {
	return s.cols(in.Len()), nil
}

func TestExtract_WidthMismatch(t *testing.T) {
	candles := constantCandles(10, 1, 1)

	tests := []struct {
		name string
		cols func(n int) map[string][]float64
	}{
		{"missing column", func(n int) map[string][]float64 {
			return map[string][]float64{"a": zeros(n)}
		}},
		{"undeclared column", func(n int) map[string][]float64 {
			return map[string][]float64{"a": zeros(n), "b": zeros(n), "c": zeros(n)}
		}},
		{"short column", func(n int) map[string][]float64 {
			return map[string][]float64{"a": zeros(n), "b": zeros(n - 1)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := NewExtractor(stubScheme{names: []string{"a", "b"}, cols: tt.cols})
			require.NoError(t, err)
			_, err = ex.Extract(candles)
			assert.True(t, errors.Is(err, ErrWidthMismatch), "got %v", err)
		})
	}
}

func TestNewSchema(t *testing.T) {
	s, err := NewSchema([]string{"x", "y", "z"})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Computed())
	names := s.Names()
	require.Len(t, names, NumFeatures)
	assert.Equal(t, "pad_03", names[3])
	idx, ok := s.Index("pad_75")
	assert.True(t, ok)
	assert.Equal(t, 75, idx)

	long := seq("c%d", 0, 99)
	s, err = NewSchema(long)
	require.NoError(t, err)
	assert.Equal(t, NumFeatures, s.Computed())
	assert.Equal(t, "c75", s.Names()[75])

	for _, bad := range [][]string{nil, {"a", ""}, {"a", "a"}, {"a", "pad_02"}} {
		_, err := NewSchema(bad)
		assert.ErrorIs(t, err, ErrSchemaInvalid, "%v", bad)
	}
}

func TestExtract_TruncatesExtraColumns(t *testing.T) {
	names := seq("c%d", 0, 79)
	ex, err := NewExtractor(stubScheme{names: names, cols: func(n int) map[string][]float64 {
		out := map[string][]float64{}
		for i, name := range names {
			out[name] = filled(n, float64(i))
		}
		return out
	}})
	require.NoError(t, err)
	m, err := ex.Extract(constantCandles(4, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, NumFeatures, m.Width())
	assert.Equal(t, 75.0, m[0][75])
}
