package models

// FeatureMatrix is one FeatureRow per candle, aligned with the candle sequence.
type FeatureMatrix [][]float64

// Width returns the number of columns, or 0 for an empty matrix.
func (m FeatureMatrix) Width() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// InstrumentFeatures pairs one instrument's feature matrix with its closes.
type InstrumentFeatures struct {
	Symbol   string
	Features FeatureMatrix
	Closes   []float64
}

// Sample is a (window, label) training pair.
type Sample struct {
	Symbol string
	// Start is the index of the first window row in the instrument's matrix.
	Start  int
	Window [][]float64
	Label  Label
	Return float64
}

// Dataset is the split, scaled output of one build.
type Dataset struct {
	XTrain [][][]float64
	YTrain []Label
	XTest  [][][]float64
	YTest  []Label
}
