package config

import (
	"fmt"
	"strings"
	"time"
)

// StoreDriver selects the JobStore backend.
type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverSQLite   StoreDriver = "sqlite"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreDriver.
func (d *StoreDriver) UnmarshalText(text []byte) error {
	v := StoreDriver(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StoreDriverMemory, StoreDriverPostgres, StoreDriverSQLite:
		*d = v
		return nil
	default:
		return fmt.Errorf("invalid StoreDriver: %q (valid options: memory, postgres, sqlite)", string(text))
	}
}

// StoreConfig selects and configures the job store.
type StoreConfig struct {
	Driver     StoreDriver `env:"STORE_DRIVER" envDefault:"memory"`
	SQLitePath string      `env:"SQLITE_PATH"  envDefault:"marketpulse.db"`
}

// Sanitize applies guardrails to store configuration values.
func (s *StoreConfig) Sanitize() {
	if s.Driver == "" {
		s.Driver = StoreDriverMemory
	}
	if strings.TrimSpace(s.SQLitePath) == "" {
		s.SQLitePath = "marketpulse.db"
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"marketpulse"`
	Password string `env:"PASSWORD"                envDefault:"marketpulse"`
	Name     string `env:"NAME"                    envDefault:"marketpulse"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	MaxOpenConns         int  `env:"MAX_OPEN_CONNS"          envDefault:"20"`
}

// DSN renders the pgx connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// ArtifactsDriver selects the ArtifactStore backend.
type ArtifactsDriver string

const (
	ArtifactsDriverFS    ArtifactsDriver = "fs"
	ArtifactsDriverRedis ArtifactsDriver = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for ArtifactsDriver.
func (d *ArtifactsDriver) UnmarshalText(text []byte) error {
	v := ArtifactsDriver(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case ArtifactsDriverFS, ArtifactsDriverRedis:
		*d = v
		return nil
	default:
		return fmt.Errorf("invalid ArtifactsDriver: %q (valid options: fs, redis)", string(text))
	}
}

// ArtifactsConfig configures where stage outputs are kept.
type ArtifactsConfig struct {
	Driver ArtifactsDriver `env:"ARTIFACTS_DRIVER" envDefault:"fs"`
	Dir    string          `env:"ARTIFACTS_DIR"    envDefault:"data/artifacts"`
	// RedisTTL bounds how long artifacts live in Redis. Zero keeps them until deleted.
	RedisTTL    time.Duration `env:"ARTIFACTS_REDIS_TTL"    envDefault:"168h"`
	RedisPrefix string        `env:"ARTIFACTS_REDIS_PREFIX" envDefault:"marketpulse:artifact:"`
}

// Sanitize applies guardrails to artifact configuration values.
func (a *ArtifactsConfig) Sanitize() {
	if a.Driver == "" {
		a.Driver = ArtifactsDriverFS
	}
	if strings.TrimSpace(a.Dir) == "" {
		a.Dir = "data/artifacts"
	}
	if a.RedisTTL < 0 {
		a.RedisTTL = 0
	}
	if a.RedisPrefix == "" {
		a.RedisPrefix = "marketpulse:artifact:"
	}
}
