package service

import "FinFeat/internal/domain/models"

// FeatureScheme turns one instrument's candle history into named columns.
// Names is the canonical, statically ordered schema; Compute must produce
// exactly those columns, each aligned with the input candles.
type FeatureScheme interface {
	Name() string
	Names() []string
	WarmUp() int
	Compute(s models.Series) (map[string][]float64, error)
}

// LabelPolicy maps a forward return to a label.
type LabelPolicy interface {
	Kind() string
	Horizon() int
	NumClasses() int
	// Fit observes every forward return of the dataset before labeling.
	// Policies without dataset statistics ignore it.
	Fit(returns []float64) error
	Label(r float64) models.Label
}
