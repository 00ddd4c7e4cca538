package models

// ScalerState is the persisted standardisation statistics, in canonical feature order.
type ScalerState struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}
