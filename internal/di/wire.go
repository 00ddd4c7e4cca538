//go:build wireinject
// +build wireinject

package di

import (
	"FinFeat/pkg/config"
	"FinFeat/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvideEventPublisher,
		ProvideBinanceClient,

		// Repositories
		ProvideCandleSource,
		ProvideCandleSink,
		ProvideArtifactStore,
		ProvideFeatureRegistry,

		// Use cases
		ProvideDatasetBuilder,
		ProvideBuildRunner,
		ProvideModelRegistry,
		ProvideCandlesUseCase,

		// Transport and application
		ProvidePipelineHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
