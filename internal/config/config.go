package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`                     // required unless Storage is memory
	Storage     string `env:"STORAGE"   envDefault:"postgres"`  // postgres | memory
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":9090"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	NATSURL     string `env:"NATS_URL"`   // optional, empty = poll only
	AuthToken   string `env:"AUTH_TOKEN"` // optional, empty = auth disabled

	// Projection runtime
	PollInterval      time.Duration `env:"POLL_INTERVAL"       envDefault:"1s"`
	MaxLiveQueueSize  int           `env:"MAX_LIVE_QUEUE_SIZE" envDefault:"10000"`
	ReadBatchSize     int           `env:"READ_BATCH_SIZE"     envDefault:"500"`
	Verbose           bool          `env:"VERBOSE"`
	RestartDelay      time.Duration `env:"RESTART_DELAY"       envDefault:"1s"`
	CheckpointSkipped bool          `env:"CHECKPOINT_SKIPPED"  envDefault:"true"`
	Codec             string        `env:"CODEC"               envDefault:"json"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Export settings
	ExportInterval   time.Duration `env:"EXPORT_INTERVAL"`    // 0 = disabled
	ExportS3Bucket   string        `env:"EXPORT_S3_BUCKET"`   // enables S3 when set
	ExportS3Endpoint string        `env:"EXPORT_S3_ENDPOINT"` // custom endpoint for MinIO
	ExportS3Region   string        `env:"EXPORT_S3_REGION"  envDefault:"us-east-1"`
	ExportS3Key      string        `env:"EXPORT_S3_KEY"     envDefault:"marketplace/readmodels.jsonl"`
	ExportGitRepo    string        `env:"EXPORT_GIT_REPO"`  // enables git when set; path to clone
	ExportGitFile    string        `env:"EXPORT_GIT_FILE"   envDefault:"readmodels.jsonl"`
	ExportGitBranch  string        `env:"EXPORT_GIT_BRANCH" envDefault:"main"`

	ConfigFile string `env:"CONFIG_FILE"` // optional TOML overrides

	// Projections holds per-projection overrides from ConfigFile.
	Projections map[string]ProjectionOverride `env:"-"`
}

// File is the layout of the optional TOML config file.
type File struct {
	Projections map[string]ProjectionOverride `toml:"projections"`
}

// ProjectionOverride tunes a single projection.
type ProjectionOverride struct {
	Disabled bool `toml:"disabled"`
}

// Enabled reports whether the named projection should run.
func (c *Config) Enabled(projection string) bool {
	return !c.Projections[projection].Disabled
}

// Load reads MARKETPLACE_* environment variables and, when CONFIG_FILE is
// set, the TOML file it names.
func Load() (*Config, error) {
	c := &Config{}
	if err := env.ParseWithOptions(c, env.Options{Prefix: "MARKETPLACE_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return nil, errors.New("MARKETPLACE_DATABASE_URL is required")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("MARKETPLACE_STORAGE: unknown storage %q", c.Storage)
	}
	if c.ExportInterval < 0 {
		return nil, fmt.Errorf("MARKETPLACE_EXPORT_INTERVAL: must not be negative")
	}

	c.Projections = map[string]ProjectionOverride{}
	if c.ConfigFile != "" {
		f, err := LoadFile(c.ConfigFile)
		if err != nil {
			return nil, err
		}
		c.Projections = f.Projections
	}
	return c, nil
}

// LoadFile decodes a TOML config file. A missing file yields an empty
// config.
func LoadFile(path string) (File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{Projections: map[string]ProjectionOverride{}}, nil
		}
		return File{}, fmt.Errorf("config file %s: %w", path, err)
	}
	if f.Projections == nil {
		f.Projections = map[string]ProjectionOverride{}
	}
	return f, nil
}
