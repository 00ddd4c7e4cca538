package repository

import (
	"context"
	"errors"

	"FinFeat/internal/domain/models"
)

var (
	ErrArtifactNotFound    = errors.New("artifact not found")
	ErrInvalidFamily       = errors.New("invalid family name")
	ErrInvalidArtifactPath = errors.New("artifact path must be relative to the output directory")
)

// ArtifactStore persists the long-lived outputs of a build.
type ArtifactStore interface {
	SaveScaler(ctx context.Context, family string, st models.ScalerState) (string, error)
	LoadScaler(ctx context.Context, family string) (models.ScalerState, error)
	SaveMetadata(ctx context.Context, family string, md models.ModelMetadata) (string, error)
	LoadMetadata(ctx context.Context, family string) (models.ModelMetadata, error)
	SaveDataset(ctx context.Context, family string, ds *models.Dataset) error
}

// ArtifactSizer reports the size of a file relative to the artifact root.
type ArtifactSizer interface {
	ArtifactSize(rel string) (int64, error)
}

// EventPublisher announces finished builds.
type EventPublisher interface {
	PublishBuilt(ctx context.Context, ev models.DatasetBuilt) error
	Close() error
}

type Metrics interface {
	RecordCandlesFetched(source, symbol string, n int)
	RecordInstrumentSkipped(family, reason string)
	RecordSamples(family string, label string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
