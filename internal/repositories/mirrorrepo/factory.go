package mirrorrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/pricefeed/internal/infrastructure/database"
	"github.com/tuncanbit/pricefeed/internal/infrastructure/mongodb"
	"github.com/tuncanbit/pricefeed/internal/infrastructure/redisstore"
	"github.com/tuncanbit/pricefeed/pkg/config"
)

// CloseFunc releases the connection behind a mirror.
type CloseFunc func(ctx context.Context) error

func noopClose(context.Context) error { return nil }

// Open connects the configured mirror driver and prepares its schema. It
// returns a nil repository and no error when the mirror is disabled.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (IMirrorRepository, CloseFunc, error) {
	if !cfg.MirrorEnabled() {
		return nil, noopClose, nil
	}

	mc := cfg.Mirror
	retention := mc.HistoryRetentionDuration()
	timeout := mc.ReadTimeoutDuration()

	switch strings.ToLower(mc.Driver) {
	case config.MirrorMongo:
		manager, err := mongodb.Connect(ctx, mc.URL, mc.Database, timeout)
		if err != nil {
			return nil, noopClose, err
		}
		mirror := NewMongoMirror(manager.Database, retention, logger)
		if err := mirror.EnsureIndexes(ctx); err != nil {
			_ = manager.ShutDown(context.Background())
			return nil, noopClose, err
		}
		return mirror, manager.ShutDown, nil

	case config.MirrorPostgres:
		manager, err := database.New(ctx, mc.URL, &cfg.Database)
		if err != nil {
			return nil, noopClose, fmt.Errorf("connecting to postgres: %w", err)
		}
		mirror := NewPostgresMirror(manager, retention, logger)
		if err := mirror.Migrate(ctx); err != nil {
			manager.ShutDown()
			return nil, noopClose, err
		}
		return mirror, func(context.Context) error {
			manager.ShutDown()
			return nil
		}, nil

	case config.MirrorRedis:
		client, err := redisstore.New(ctx, mc.URL, timeout)
		if err != nil {
			return nil, noopClose, err
		}
		mirror := NewRedisMirror(client, RedisOptions{
			KeyPrefix:        mc.KeyPrefix,
			HistoryRetention: retention,
		}, logger)
		return mirror, func(context.Context) error { return client.Close() }, nil
	}

	return nil, noopClose, fmt.Errorf("unsupported mirror driver %q", mc.Driver)
}
