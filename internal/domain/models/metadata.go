package models

// ModelMetadata is the per-model document consumed by the serving app.
type ModelMetadata struct {
	Type              string            `json:"type"`
	Timeframe         string            `json:"timeframe,omitempty"`
	PredictionHorizon string            `json:"prediction_horizon,omitempty"`
	TrainedOn         []string          `json:"trained_on"`
	TestAccuracy      float64           `json:"test_accuracy"`
	TrainSamples      int               `json:"train_samples"`
	TestSamples       int               `json:"test_samples"`
	ModelSizeKB       float64           `json:"model_size_kb"`
	NumFeatures       int               `json:"num_features"`
	NumClasses        int               `json:"num_classes"`
	Calibration       string            `json:"calibration,omitempty"`
	ScalerPath        string            `json:"scaler_path"`
	Date              string            `json:"date"`
	FeatureScheme     string            `json:"feature_scheme"`
	FeatureNames      []string          `json:"feature_names"`
	SequenceLength    int               `json:"sequence_length"`
	LabelPolicy       string            `json:"label_policy"`
	ClassDistribution ClassDistribution `json:"class_distribution"`
	RunID             string            `json:"run_id"`
	Warnings          []string          `json:"warnings,omitempty"`
}

// DatasetBuilt is published after a family's artifacts are written.
type DatasetBuilt struct {
	RunID        string   `json:"run_id"`
	Family       string   `json:"family"`
	Scheme       string   `json:"scheme"`
	Instruments  []string `json:"instruments"`
	Skipped      []string `json:"skipped"`
	TrainSamples int      `json:"train_samples"`
	TestSamples  int      `json:"test_samples"`
	ScalerPath   string   `json:"scaler_path"`
	MetadataPath string   `json:"metadata_path"`
	Finalized    bool     `json:"finalized"`
	Timestamp    int64    `json:"ts"`
}
