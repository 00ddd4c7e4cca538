package features

import (
	"fmt"

	"FinFeat/internal/domain/models"
	domsvc "FinFeat/internal/domain/service"
)

// Extractor binds a FeatureScheme to its validated Schema and produces
// [T, NumFeatures] matrices.
type Extractor struct {
	scheme   domsvc.FeatureScheme
	schema   Schema
	declared map[string]struct{}
}

// NewExtractor checks the scheme's declared names at construction.
func NewExtractor(scheme domsvc.FeatureScheme) (*Extractor, error) {
	declared := scheme.Names()
	schema, err := NewSchema(declared)
	if err != nil {
		return nil, fmt.Errorf("scheme %s: %w", scheme.Name(), err)
	}
	set := make(map[string]struct{}, len(declared))
	for _, n := range declared {
		set[n] = struct{}{}
	}
	return &Extractor{scheme: scheme, schema: schema, declared: set}, nil
}

func (e *Extractor) Scheme() string  { return e.scheme.Name() }
func (e *Extractor) Names() []string { return e.schema.Names() }
func (e *Extractor) WarmUp() int     { return e.scheme.WarmUp() }

// Extract computes the feature matrix for one instrument's ascending candles.
// Warm-up rows are kept with undefined values set to 0. A scheme producing
// undeclared, missing or misaligned columns returns ErrWidthMismatch.
func (e *Extractor) Extract(candles []models.Candle) (models.FeatureMatrix, error) {
	t := len(candles)
	if t == 0 {
		return models.FeatureMatrix{}, nil
	}
	cols, err := e.scheme.Compute(models.Columns(candles))
	if err != nil {
		return nil, fmt.Errorf("scheme %s: %w", e.scheme.Name(), err)
	}
	for name := range cols {
		if _, ok := e.declared[name]; !ok {
			return nil, fmt.Errorf("%w: scheme %s produced undeclared column %q", ErrWidthMismatch, e.scheme.Name(), name)
		}
	}

	m := make(models.FeatureMatrix, t)
	flat := make([]float64, t*NumFeatures)
	for i := range m {
		m[i] = flat[i*NumFeatures : (i+1)*NumFeatures : (i+1)*NumFeatures]
	}
	for j, name := range e.schema.names[:e.schema.computed] {
		col, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("%w: scheme %s missing column %q", ErrWidthMismatch, e.scheme.Name(), name)
		}
		if len(col) != t {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrWidthMismatch, name, len(col), t)
		}
		for i, v := range col {
			m[i][j] = clean(v)
		}
	}
	if w := m.Width(); w != NumFeatures {
		return nil, fmt.Errorf("%w: got %d columns", ErrWidthMismatch, w)
	}
	return m, nil
}
