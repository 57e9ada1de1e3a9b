package factory

import (
	"context"

	"github.com/atlas-health/atlas/internal/atlaserrors"
	"github.com/atlas-health/atlas/internal/config"
	"github.com/atlas-health/atlas/internal/targetstore"
	"github.com/atlas-health/atlas/internal/targetstore/cosmos"
	"github.com/atlas-health/atlas/internal/targetstore/postgres"
	"github.com/atlas-health/atlas/internal/watermark"
)

// Backend bundles the Target Store and watermark Store a concrete backend
// provides; both share the same underlying connection.
type Backend struct {
	Store     targetstore.Store
	Watermark watermark.Store
	Close     func(ctx context.Context) error
}

// New constructs the Target Store backend selected by cfg.Target.
func New(ctx context.Context, cfg config.TargetConfig) (*Backend, error) {
	switch cfg.Target {
	case config.TargetPostgres:
		if err := postgres.RunMigrations(cfg.PostgresURL, cfg.PostgresSSLMode); err != nil {
			return nil, atlaserrors.Wrap(atlaserrors.TargetConnection, err, "running postgres migrations")
		}
		store, err := postgres.NewStore(ctx, cfg.PostgresURL, cfg.PostgresSSLMode, cfg.StatementTimeoutMs)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: store, Watermark: store, Close: store.Close}, nil

	case config.TargetCosmos:
		store, err := cosmos.NewStore(cfg.CosmosEndpoint, cfg.CosmosKey, cfg.CosmosDatabase, cfg.ContainerPrefix, cfg.ControlContainerName, cfg.MaxInsertRetries)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureControlContainer(ctx); err != nil {
			return nil, err
		}
		return &Backend{Store: store, Watermark: store, Close: store.Close}, nil

	default:
		return nil, atlaserrors.New(atlaserrors.Configuration, "unknown target store %q", cfg.Target)
	}
}
