package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	"FinFeat/internal/services/features"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// waveCandles oscillates around 100 so every label class shows up.
func waveCandles(symbol string, n int, step time.Duration) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + 5*math.Sin(float64(i)/3) + float64(i)*0.01
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * step),
			Symbol: symbol,
			Open:   c - 0.1, High: c + 0.5, Low: c - 0.5, Close: c,
			Volume: 1000 + float64(i%7)*10,
		}
	}
	return out
}

// rampScheme emits close and one-bar return; the rest of the row is padding.
type rampScheme struct{}

func (rampScheme) Name() string    { return "ramp" }
func (rampScheme) Names() []string { return []string{"close", "ret_1"} }
func (rampScheme) WarmUp() int     { return 1 }

func (rampScheme) Compute(s models.Series) (map[string][]float64, error) {
	ret := make([]float64, s.Len())
	for i := 1; i < s.Len(); i++ {
		ret[i] = s.Close[i]/s.Close[i-1] - 1
	}
	return map[string][]float64{"close": append([]float64(nil), s.Close...), "ret_1": ret}, nil
}

// rogueScheme produces a column it never declared.
type rogueScheme struct{}

func (rogueScheme) Name() string    { return "rogue" }
func (rogueScheme) Names() []string { return []string{"close"} }
func (rogueScheme) WarmUp() int     { return 0 }

func (rogueScheme) Compute(s models.Series) (map[string][]float64, error) {
	return map[string][]float64{"close": s.Close, "extra": s.Close}, nil
}

func testRegistry(t *testing.T) *features.Registry {
	t.Helper()
	r, err := features.NewRegistry(features.ShortHorizon{}, rampScheme{}, rogueScheme{})
	require.NoError(t, err)
	return r
}

// fakeSource serves fixed candles per symbol; errs take precedence.
type fakeSource struct {
	mu      sync.Mutex
	candles map[string][]models.Candle
	errs    map[string]error
	calls   int
}

func (f *fakeSource) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	c := f.candles[symbol]
	if n > 0 && len(c) > n {
		c = c[len(c)-n:]
	}
	return c, nil
}

func (f *fakeSource) GetCandles(_ context.Context, symbol string, from, to time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	var out []models.Candle
	for _, c := range f.candles[symbol] {
		if !c.Bucket.Before(from) && !c.Bucket.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// memStore keeps artifacts in memory.
type memStore struct {
	mu       sync.Mutex
	scalers  map[string]models.ScalerState
	metadata map[string]models.ModelMetadata
	datasets map[string]*models.Dataset
	sizes    map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		scalers:  map[string]models.ScalerState{},
		metadata: map[string]models.ModelMetadata{},
		datasets: map[string]*models.Dataset{},
		sizes:    map[string]int64{},
	}
}

func (s *memStore) SaveScaler(_ context.Context, family string, st models.ScalerState) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalers[family] = st
	return family + "_scaler.json", nil
}

func (s *memStore) LoadScaler(_ context.Context, family string) (models.ScalerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.scalers[family]
	if !ok {
		return models.ScalerState{}, domrepo.ErrArtifactNotFound
	}
	return st, nil
}

func (s *memStore) SaveMetadata(_ context.Context, family string, md models.ModelMetadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[family] = md
	return family + "_metadata.json", nil
}

func (s *memStore) LoadMetadata(_ context.Context, family string) (models.ModelMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.metadata[family]
	if !ok {
		return models.ModelMetadata{}, fmt.Errorf("%w: %s", domrepo.ErrArtifactNotFound, family)
	}
	return md, nil
}

func (s *memStore) SaveDataset(_ context.Context, family string, ds *models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[family] = ds
	return nil
}

func (s *memStore) ArtifactSize(rel string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.sizes[rel]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domrepo.ErrArtifactNotFound, rel)
	}
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.DatasetBuilt
	err    error
}

func (p *recordingPublisher) PublishBuilt(_ context.Context, ev models.DatasetBuilt) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingMetrics struct {
	mu      sync.Mutex
	skipped map[string]int
	samples map[string]int
	errors  map[string]int
	fetched map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		skipped: map[string]int{},
		samples: map[string]int{},
		errors:  map[string]int{},
		fetched: map[string]int{},
	}
}

func (m *recordingMetrics) RecordCandlesFetched(_ string, symbol string, n int) {
	m.mu.Lock()
	m.fetched[symbol] += n
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordInstrumentSkipped(_ string, reason string) {
	m.mu.Lock()
	m.skipped[reason]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordSamples(_ string, label string, n int) {
	m.mu.Lock()
	m.samples[label] += n
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordLatency(string, float64) {}

var (
	_ domrepo.CandleSource   = (*fakeSource)(nil)
	_ domrepo.ArtifactStore  = (*memStore)(nil)
	_ domrepo.ArtifactSizer  = (*memStore)(nil)
	_ domrepo.EventPublisher = (*recordingPublisher)(nil)
	_ domrepo.Metrics        = (*recordingMetrics)(nil)
)
