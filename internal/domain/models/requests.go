package models

// Requests for pipeline HTTP endpoints.

type FeaturesRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Timeframe string `query:"tf" json:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Scheme    string `query:"scheme" json:"scheme" default:"short_horizon" validate:"required"`
	Limit     int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
	Rows      int    `query:"rows" json:"rows" default:"60" validate:"gte=1,lte=1000"`
}

type CandlesRequest struct {
	Symbol    string `param:"symbol" validate:"required"`
	Timeframe string `query:"tf" default:"5m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	From      string `query:"from"`
	To        string `query:"to"`
	Limit     int    `query:"limit" default:"500" validate:"gte=1,lte=5000"`
}

type FinalizeRequest struct {
	TestAccuracy float64 `json:"test_accuracy" validate:"gte=0,lte=1"`
	ModelPath    string  `json:"model_path" validate:"required"`
}

type FeaturesResponse struct {
	Symbol  string      `json:"symbol"`
	Scheme  string      `json:"scheme"`
	Names   []string    `json:"names"`
	Candles int         `json:"candles"`
	Rows    [][]float64 `json:"rows"`
}

type SchemeInfo struct {
	Name        string   `json:"name"`
	WarmUp      int      `json:"warm_up"`
	NumFeatures int      `json:"num_features"`
	Names       []string `json:"names,omitempty"`
}
