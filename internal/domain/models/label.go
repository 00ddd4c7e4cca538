package models

// Label is a categorical training target.
type Label int

// Three-class alphabet.
const (
	Sell Label = 0
	Hold Label = 1
	Buy  Label = 2
)

// Two-class alphabet.
const (
	Down Label = 0
	Up   Label = 1
)

// ClassNames returns the label names for a class count, indexed by Label value.
func ClassNames(numClasses int) []string {
	if numClasses == 2 {
		return []string{"DOWN", "UP"}
	}
	return []string{"SELL", "HOLD", "BUY"}
}

// ClassDistribution counts labels per class.
type ClassDistribution struct {
	Names  []string  `json:"names"`
	Counts []int     `json:"counts"`
	Ratios []float64 `json:"ratios"`
	Total  int       `json:"total"`
}

// NewClassDistribution tallies labels for the given class count.
func NewClassDistribution(labels []Label, numClasses int) ClassDistribution {
	d := ClassDistribution{
		Names:  ClassNames(numClasses),
		Counts: make([]int, numClasses),
		Ratios: make([]float64, numClasses),
		Total:  len(labels),
	}
	for _, l := range labels {
		if int(l) >= 0 && int(l) < numClasses {
			d.Counts[l]++
		}
	}
	if d.Total > 0 {
		for i, c := range d.Counts {
			d.Ratios[i] = float64(c) / float64(d.Total)
		}
	}
	return d
}
