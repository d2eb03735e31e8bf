package appconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/bookii/qiitaviewer/core/qiita/adapters/qiitaapi"
	"github.com/bookii/qiitaviewer/modules/db/postgres"
	"github.com/bookii/qiitaviewer/modules/db/redis"
	"github.com/bookii/qiitaviewer/modules/telemetry"
)

// HistoryBackend selects where search histories are persisted.
type HistoryBackend string

const (
	HistoryBackendFile     HistoryBackend = "file"
	HistoryBackendRedis    HistoryBackend = "redis"
	HistoryBackendPostgres HistoryBackend = "postgres"
)

type HistoryConfig struct {
	Backend HistoryBackend `env:"BACKEND" envDefault:"file"`

	// Directory for the file backend. Empty means the user config dir.
	Dir string `env:"DIR"`
}

type Config struct {
	Env string `env:"ENV" envDefault:"dev"`

	// --- content service ----
	Qiita qiitaapi.Config `envPrefix:"QIITA_"`

	// --- persistence ----
	History  HistoryConfig           `envPrefix:"HISTORY_"`
	Redis    redis.RedisConfig       `envPrefix:"REDIS_"`
	Postgres postgres.PostgresConfig `envPrefix:"POSTGRES_"`

	// --- otel ----
	// since it has special naming conventions, we do not use prefix here
	Otel telemetry.Config
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(c *Config) error {
	switch c.History.Backend {
	case HistoryBackendFile, HistoryBackendRedis, HistoryBackendPostgres:
	default:
		return fmt.Errorf("appconfig: unknown history backend %q", c.History.Backend)
	}
	return nil
}
