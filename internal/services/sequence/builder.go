package sequence

import (
	"errors"
	"fmt"

	"FinFeat/internal/domain/models"
	domsvc "FinFeat/internal/domain/service"
	"FinFeat/internal/services/labels"
)

var ErrInsufficientHistory = errors.New("sequence: insufficient history")

// Builder cuts per-instrument feature matrices into labeled windows.
type Builder struct {
	window int
	offset int
	policy domsvc.LabelPolicy
}

type Option func(*Builder)

// WithStartOffset makes the first window start at row n, e.g. after the scheme warm-up.
func WithStartOffset(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.offset = n
		}
	}
}

func NewBuilder(window int, policy domsvc.LabelPolicy, opts ...Option) (*Builder, error) {
	if window < 1 {
		return nil, fmt.Errorf("sequence: window must be >= 1, got %d", window)
	}
	if policy == nil {
		return nil, errors.New("sequence: nil label policy")
	}
	b := &Builder{window: window, policy: policy}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Result is the labeled output of one build.
type Result struct {
	Samples      []models.Sample
	Distribution models.ClassDistribution
	// PerInstrument counts emitted samples by symbol.
	PerInstrument map[string]int
	// Skipped lists symbols too short to produce a single window.
	Skipped []string
}

// Labels returns the sample labels in order.
func (r *Result) Labels() []models.Label {
	out := make([]models.Label, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Label
	}
	return out
}

// MinLength is the shortest matrix that yields one window.
func (b *Builder) MinLength() int { return b.offset + b.window + b.policy.Horizon() + 1 }

// Windows returns the unlabeled samples of one instrument, in start order.
// Window rows alias the instrument's matrix and must not be mutated.
func (b *Builder) Windows(inst models.InstrumentFeatures) ([]models.Sample, error) {
	t := len(inst.Features)
	if len(inst.Closes) != t {
		return nil, fmt.Errorf("sequence: %s has %d rows but %d closes", inst.Symbol, t, len(inst.Closes))
	}
	h := b.policy.Horizon()
	if t < b.MinLength() {
		return nil, fmt.Errorf("%w: %s has %d rows, need %d", ErrInsufficientHistory, inst.Symbol, t, b.MinLength())
	}
	out := make([]models.Sample, 0, t-b.window-h-b.offset)
	for i := b.offset; i <= t-b.window-h-1; i++ {
		r, ok := labels.ForwardReturn(inst.Closes, i+b.window, h)
		if !ok {
			continue
		}
		out = append(out, models.Sample{
			Symbol: inst.Symbol,
			Start:  i,
			Window: inst.Features[i : i+b.window : i+b.window],
			Return: r,
		})
	}
	return out, nil
}

// Build windows every instrument independently and concatenates the
// results in input order. The policy is fitted on every forward return
// before any sample is labeled.
func (b *Builder) Build(instruments []models.InstrumentFeatures) (*Result, error) {
	res := &Result{PerInstrument: make(map[string]int, len(instruments))}
	for _, inst := range instruments {
		samples, err := b.Windows(inst)
		if errors.Is(err, ErrInsufficientHistory) {
			res.Skipped = append(res.Skipped, inst.Symbol)
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Samples = append(res.Samples, samples...)
		res.PerInstrument[inst.Symbol] = len(samples)
	}

	returns := make([]float64, len(res.Samples))
	for i, s := range res.Samples {
		returns[i] = s.Return
	}
	if len(returns) > 0 {
		if err := b.policy.Fit(returns); err != nil {
			return nil, fmt.Errorf("fit label policy: %w", err)
		}
	}
	for i := range res.Samples {
		res.Samples[i].Label = b.policy.Label(res.Samples[i].Return)
	}
	res.Distribution = models.NewClassDistribution(res.Labels(), b.policy.NumClasses())
	return res, nil
}
