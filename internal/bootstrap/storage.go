package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/marketpulse/config"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data"
	httpx "github.com/target/marketpulse/internal/http"
	"github.com/target/marketpulse/internal/migrate"
)

// Infrastructure holds the connections and stores selected by configuration.
// DB and Redis are nil when the configured drivers do not need them.
type Infrastructure struct {
	DB        *sql.DB
	Redis     redis.UniversalClient
	Store     core.JobStore
	Artifacts core.ArtifactStore
}

// OpenInfrastructure connects the job store and artifact store drivers named
// in cfg and applies migrations when the job store is SQL backed.
func OpenInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	if cfg == nil {
		return nil, errors.New("app config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dbCfg := DatabaseConfig{
		Postgres:   cfg.Postgres,
		SQLitePath: cfg.Store.SQLitePath,
		Redis:      cfg.Redis,
		Logger:     logger,
	}

	infra := &Infrastructure{}
	if err := infra.openJobStore(ctx, cfg, dbCfg, logger); err != nil {
		return nil, errors.Join(err, infra.Close())
	}
	if err := infra.openArtifactStore(cfg.Artifacts, dbCfg); err != nil {
		return nil, errors.Join(err, infra.Close())
	}

	logger.InfoContext(ctx, "storage ready",
		"job_store", string(cfg.Store.Driver),
		"artifacts", string(cfg.Artifacts.Driver))
	return infra, nil
}

func (i *Infrastructure) openJobStore(ctx context.Context, cfg *config.AppConfig, dbCfg DatabaseConfig, logger *slog.Logger) error {
	var err error
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		if i.DB, err = ConnectDB(dbCfg); err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrationsOnStart {
			if err = RunMigrations(ctx, i.DB, migrate.Postgres, logger); err != nil {
				return err
			}
		}
		i.Store = data.NewPostgresJobStore(i.DB, logger)
	case config.StoreDriverSQLite:
		if i.DB, err = ConnectSQLite(dbCfg); err != nil {
			return fmt.Errorf("connect sqlite: %w", err)
		}
		if err = RunMigrations(ctx, i.DB, migrate.SQLite, logger); err != nil {
			return err
		}
		i.Store = data.NewSQLiteJobStore(i.DB, logger)
	default:
		i.Store = data.NewMemoryJobStore()
	}
	return nil
}

func (i *Infrastructure) openArtifactStore(cfg config.ArtifactsConfig, dbCfg DatabaseConfig) error {
	if cfg.Driver == config.ArtifactsDriverRedis {
		client, err := ConnectRedis(dbCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		i.Redis = client
		i.Artifacts = data.NewRedisArtifactStore(client, data.RedisArtifactStoreOptions{
			Prefix: cfg.RedisPrefix,
			TTL:    cfg.RedisTTL,
		})
		return nil
	}

	store, err := data.NewFSArtifactStore(cfg.Dir)
	if err != nil {
		return fmt.Errorf("open artifact dir: %w", err)
	}
	i.Artifacts = store
	return nil
}

// ReadinessChecks returns one check per external dependency.
func (i *Infrastructure) ReadinessChecks() []httpx.HealthCheck {
	var checks []httpx.HealthCheck
	if i == nil {
		return checks
	}
	if i.DB != nil {
		checks = append(checks, httpx.HealthCheck{Name: "database", Check: i.DB.PingContext})
	}
	if i.Redis != nil {
		checks = append(checks, httpx.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return i.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// Close releases database and redis connections.
func (i *Infrastructure) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
