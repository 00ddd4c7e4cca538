package labels

import (
	"errors"
	"fmt"
	"math"

	"FinFeat/internal/domain/models"
	domsvc "FinFeat/internal/domain/service"
)

// Policy kinds accepted in family configuration.
const (
	KindFixed      = "fixed"
	KindPercentile = "percentile"
	KindBinary     = "binary"
)

const DefaultThreshold = 0.002

var (
	ErrUnknownKind = errors.New("labels: unknown policy kind")
	ErrNoReturns   = errors.New("labels: no forward returns to fit")
)

// Options tune a policy at construction.
type Options struct {
	Threshold      float64
	LowPercentile  float64
	HighPercentile float64
}

type Option func(*Options)

// WithThreshold sets τ for the fixed-threshold policy.
func WithThreshold(tau float64) Option { return func(o *Options) { o.Threshold = tau } }

// WithPercentiles sets the SELL/BUY cut points (0-100) for the percentile policy.
func WithPercentiles(low, high float64) Option {
	return func(o *Options) { o.LowPercentile, o.HighPercentile = low, high }
}

// New builds the policy selected by kind.
func New(kind string, horizon int, opts ...Option) (domsvc.LabelPolicy, error) {
	o := Options{Threshold: DefaultThreshold, LowPercentile: 33, HighPercentile: 67}
	for _, opt := range opts {
		opt(&o)
	}
	if horizon < 1 {
		return nil, fmt.Errorf("labels: horizon must be >= 1, got %d", horizon)
	}
	switch kind {
	case KindFixed:
		if o.Threshold < 0 {
			return nil, fmt.Errorf("labels: negative threshold %v", o.Threshold)
		}
		return &FixedThreshold{Tau: o.Threshold, H: horizon}, nil
	case KindPercentile:
		if o.LowPercentile < 0 || o.HighPercentile > 100 || o.LowPercentile > o.HighPercentile {
			return nil, fmt.Errorf("labels: invalid percentiles %v/%v", o.LowPercentile, o.HighPercentile)
		}
		return &Percentile{H: horizon, Low: o.LowPercentile, High: o.HighPercentile}, nil
	case KindBinary:
		return &BinaryTrend{H: horizon}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// ForwardReturn is (close[at+h]-close[at])/close[at]. ok is false when the
// horizon runs past the data or the result is not finite.
func ForwardReturn(closes []float64, at, h int) (float64, bool) {
	if at < 0 || h < 1 || at+h >= len(closes) {
		return 0, false
	}
	base := closes[at]
	if base == 0 {
		return 0, false
	}
	r := (closes[at+h] - base) / base
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

// FixedThreshold labels BUY above τ, SELL below -τ, HOLD otherwise.
type FixedThreshold struct {
	Tau float64
	H   int
}

func (p *FixedThreshold) Kind() string          { return KindFixed }
func (p *FixedThreshold) Horizon() int          { return p.H }
func (p *FixedThreshold) NumClasses() int       { return 3 }
func (p *FixedThreshold) Fit(_ []float64) error { return nil }

func (p *FixedThreshold) Label(r float64) models.Label {
	switch {
	case r > p.Tau:
		return models.Buy
	case r < -p.Tau:
		return models.Sell
	default:
		return models.Hold
	}
}

func (p *FixedThreshold) String() string { return fmt.Sprintf("fixed(tau=%g,h=%d)", p.Tau, p.H) }

// Percentile labels against dataset-wide return percentiles, giving a
// roughly even SELL/HOLD/BUY split. Fit must see every return first.
type Percentile struct {
	H         int
	Low, High float64

	sellBelow float64
	buyAbove  float64
	fitted    bool
}

func (p *Percentile) Kind() string    { return KindPercentile }
func (p *Percentile) Horizon() int    { return p.H }
func (p *Percentile) NumClasses() int { return 3 }

func (p *Percentile) Fit(returns []float64) error {
	if len(returns) == 0 {
		return ErrNoReturns
	}
	p.sellBelow = percentile(returns, p.Low)
	p.buyAbove = percentile(returns, p.High)
	p.fitted = true
	return nil
}

// Thresholds returns the fitted cut points.
func (p *Percentile) Thresholds() (sellBelow, buyAbove float64, ok bool) {
	return p.sellBelow, p.buyAbove, p.fitted
}

// Label returns HOLD until the policy is fitted.
func (p *Percentile) Label(r float64) models.Label {
	if !p.fitted {
		return models.Hold
	}
	switch {
	case r < p.sellBelow:
		return models.Sell
	case r > p.buyAbove:
		return models.Buy
	default:
		return models.Hold
	}
}

func (p *Percentile) String() string {
	return fmt.Sprintf("percentile(p%g/p%g,h=%d)", p.Low, p.High, p.H)
}

// BinaryTrend labels UP for a strictly positive return.
type BinaryTrend struct {
	H int
}

func (p *BinaryTrend) Kind() string          { return KindBinary }
func (p *BinaryTrend) Horizon() int          { return p.H }
func (p *BinaryTrend) NumClasses() int       { return 2 }
func (p *BinaryTrend) Fit(_ []float64) error { return nil }

func (p *BinaryTrend) Label(r float64) models.Label {
	if r > 0 {
		return models.Up
	}
	return models.Down
}

func (p *BinaryTrend) String() string { return fmt.Sprintf("binary(h=%d)", p.H) }

var (
	_ domsvc.LabelPolicy = (*FixedThreshold)(nil)
	_ domsvc.LabelPolicy = (*Percentile)(nil)
	_ domsvc.LabelPolicy = (*BinaryTrend)(nil)
)
