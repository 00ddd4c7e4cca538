package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"FinFeat/internal/domain/models"
	domrepo "FinFeat/internal/domain/repository"
	applogger "FinFeat/pkg/logger"
)

// ModelRegistry records trainer results on top of a built dataset's metadata.
type ModelRegistry struct {
	store   domrepo.ArtifactStore
	sizer   domrepo.ArtifactSizer
	pub     domrepo.EventPublisher
	metrics domrepo.Metrics
	log     *applogger.Logger
	now     func() time.Time
}

// NewModelRegistry creates a new ModelRegistry instance.
func NewModelRegistry(
	store domrepo.ArtifactStore,
	sizer domrepo.ArtifactSizer,
	pub domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *ModelRegistry {
	if log == nil {
		log = applogger.Nop()
	}
	return &ModelRegistry{
		store:   store,
		sizer:   sizer,
		pub:     pub,
		metrics: metrics,
		log:     log.With("model_registry"),
		now:     time.Now,
	}
}

// Metadata returns the stored document of a family.
func (r *ModelRegistry) Metadata(ctx context.Context, family string) (models.ModelMetadata, error) {
	return r.store.LoadMetadata(ctx, family)
}

// Finalize stores the external trainer's test accuracy and model size.
// modelPath is resolved against the artifact root when relative.
func (r *ModelRegistry) Finalize(ctx context.Context, family string, accuracy float64, modelPath string) (models.ModelMetadata, error) {
	if math.IsNaN(accuracy) || accuracy < 0 || accuracy > 1 {
		return models.ModelMetadata{}, fmt.Errorf("finalize %s: accuracy %v out of [0,1]", family, accuracy)
	}
	if modelPath == "" {
		return models.ModelMetadata{}, errors.New("finalize: model path required")
	}

	md, err := r.store.LoadMetadata(ctx, family)
	if err != nil {
		return models.ModelMetadata{}, fmt.Errorf("finalize %s: %w", family, err)
	}
	size, err := r.sizer.ArtifactSize(modelPath)
	if err != nil {
		return models.ModelMetadata{}, fmt.Errorf("finalize %s: model size: %w", family, err)
	}

	md.TestAccuracy = accuracy
	md.ModelSizeKB = math.Round(float64(size)/1024*100) / 100
	md.Date = r.now().UTC().Format(time.RFC3339)
	md.Warnings = QualityWarnings(md)

	mdPath, err := r.store.SaveMetadata(ctx, family, md)
	if err != nil {
		return models.ModelMetadata{}, fmt.Errorf("finalize %s: %w", family, err)
	}

	ev := models.DatasetBuilt{
		RunID:        md.RunID,
		Family:       family,
		Scheme:       md.FeatureScheme,
		Instruments:  md.TrainedOn,
		TrainSamples: md.TrainSamples,
		TestSamples:  md.TestSamples,
		ScalerPath:   md.ScalerPath,
		MetadataPath: mdPath,
		Finalized:    true,
		Timestamp:    r.now().UnixMilli(),
	}
	if err := r.pub.PublishBuilt(ctx, ev); err != nil {
		r.metrics.RecordError("publish")
		r.log.Warn("publish finalize event failed", applogger.String("family", family), applogger.Error(err))
	}

	r.log.Info("model finalized",
		applogger.String("family", family),
		applogger.Float64("test_accuracy", accuracy),
		applogger.Float64("model_size_kb", md.ModelSizeKB),
	)
	for _, w := range md.Warnings {
		r.log.Warn("model quality", applogger.String("family", family), applogger.String("warning", w))
	}
	return md, nil
}
