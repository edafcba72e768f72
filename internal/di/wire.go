//go:build wireinject
// +build wireinject

package di

import (
	"NKDash/pkg/config"
	"NKDash/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideSnapshotMirror,

		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Telemetry
		ProvideEventLog,
		ProvideDialer,
		ProvideConnectionManager,

		// Sinks
		ProvideEventPublisher,
		ProvideEventPipeline,

		// HTTP
		ProvideDashboardHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
