package scaler

import (
	"errors"
	"fmt"
	"math"

	"FinFeat/internal/domain/models"
)

// MinStd is the zero-variance threshold; such columns are stored with std 1.
const MinStd = 1e-10

var (
	ErrNotFitted = errors.New("scaler: not fitted")
	ErrDimension = errors.New("scaler: dimension mismatch")
)

// Scaler standardises feature rows with per-column population statistics.
// A fitted Scaler is immutable and safe for concurrent use.
type Scaler struct {
	mean []float64
	std  []float64
}

// Fit computes population mean and std over every row in a single pass.
func Fit(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrNotFitted)
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: empty rows", ErrDimension)
	}
	mean := make([]float64, width)
	m2 := make([]float64, width)
	for n, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, n, len(row), width)
		}
		k := float64(n + 1)
		for j, x := range row {
			d := x - mean[j]
			mean[j] += d / k
			m2[j] += d * (x - mean[j])
		}
	}
	std := make([]float64, width)
	for j := range std {
		std[j] = math.Sqrt(m2[j] / float64(len(rows)))
		if std[j] < MinStd {
			std[j] = 1
		}
	}
	return &Scaler{mean: mean, std: std}, nil
}

// FitWindows pools the rows of every window before fitting.
func FitWindows(windows [][][]float64) (*Scaler, error) {
	n := 0
	for _, w := range windows {
		n += len(w)
	}
	rows := make([][]float64, 0, n)
	for _, w := range windows {
		rows = append(rows, w...)
	}
	return Fit(rows)
}

// FromState restores a persisted scaler.
func FromState(st models.ScalerState) (*Scaler, error) {
	if err := Validate(st, 0); err != nil {
		return nil, err
	}
	return &Scaler{
		mean: append([]float64(nil), st.Mean...),
		std:  append([]float64(nil), st.Std...),
	}, nil
}

// Validate checks a state's shape; width 0 skips the length check.
func Validate(st models.ScalerState, width int) error {
	if len(st.Mean) == 0 {
		return fmt.Errorf("%w: empty state", ErrDimension)
	}
	if len(st.Mean) != len(st.Std) {
		return fmt.Errorf("%w: %d means, %d stds", ErrDimension, len(st.Mean), len(st.Std))
	}
	if width > 0 && len(st.Mean) != width {
		return fmt.Errorf("%w: %d columns, want %d", ErrDimension, len(st.Mean), width)
	}
	for j, s := range st.Std {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) || math.IsNaN(st.Mean[j]) || math.IsInf(st.Mean[j], 0) {
			return fmt.Errorf("%w: column %d has mean %v std %v", ErrDimension, j, st.Mean[j], s)
		}
	}
	return nil
}

func (s *Scaler) Width() int { return len(s.mean) }

// State returns a copy of the fitted statistics.
func (s *Scaler) State() models.ScalerState {
	return models.ScalerState{
		Mean: append([]float64(nil), s.mean...),
		Std:  append([]float64(nil), s.std...),
	}
}

// TransformRow returns (x-mean)/std as a new row.
func (s *Scaler) TransformRow(row []float64) ([]float64, error) {
	if len(row) != len(s.mean) {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrDimension, len(row), len(s.mean))
	}
	out := make([]float64, len(row))
	for j, x := range row {
		out[j] = (x - s.mean[j]) / s.std[j]
	}
	return out, nil
}

// InverseRow maps a standardised row back to feature space.
func (s *Scaler) InverseRow(row []float64) ([]float64, error) {
	if len(row) != len(s.mean) {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrDimension, len(row), len(s.mean))
	}
	out := make([]float64, len(row))
	for j, z := range row {
		out[j] = z*s.std[j] + s.mean[j]
	}
	return out, nil
}

func (s *Scaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		t, err := s.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

func (s *Scaler) Inverse(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		t, err := s.InverseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// TransformWindow standardises one window; input rows are left untouched.
func (s *Scaler) TransformWindow(w [][]float64) ([][]float64, error) {
	return s.Transform(w)
}
