package core

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"brewcore/internal/blob"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// MetricsDriver selects how engine cache activity is exported.
type MetricsDriver string

const (
	MetricsNone       MetricsDriver = "none"
	MetricsPrometheus MetricsDriver = "prometheus"
	MetricsExpvar     MetricsDriver = "expvar"
)

// Config is the process configuration of a brewcore deployment.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Blob    blob.Config   `toml:"blob"`
	Metrics MetricsConfig `toml:"metrics"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Driver      StorageDriver `toml:"driver"`
	SQLitePath  string        `toml:"sqlite_path"`
	PostgresDSN string        `toml:"postgres_dsn"`
}

// MetricsConfig selects the engine recorder.
type MetricsConfig struct {
	Driver MetricsDriver `toml:"driver"`
	// Name is the expvar export name; empty picks a unique one.
	Name string `toml:"name"`
}

// DefaultConfig returns an ephemeral configuration: memory records,
// filesystem blobs under ./blobdata and no metrics export.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{Driver: StorageMemory},
		Blob:    blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./blobdata"},
		Metrics: MetricsConfig{Driver: MetricsNone},
	}
}

// LoadConfig reads the optional TOML file at path over DefaultConfig and then
// applies BREWCORE_* environment overrides:
//
//	BREWCORE_STORAGE_DRIVER: memory|sqlite|postgres
//	BREWCORE_SQLITE_PATH: path to sqlite file
//	BREWCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	BREWCORE_BLOB_DRIVER: fs|s3|memory
//	BREWCORE_BLOB_FS_ROOT: directory for the fs driver
//	BREWCORE_BLOB_S3_BUCKET, BREWCORE_BLOB_S3_REGION, BREWCORE_BLOB_S3_ENDPOINT
//	BREWCORE_BLOB_S3_PATH_STYLE: true|false
//	BREWCORE_METRICS_DRIVER: none|prometheus|expvar
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return Config{}, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"BREWCORE_SQLITE_PATH", &c.Storage.SQLitePath},
		{"BREWCORE_POSTGRES_DSN", &c.Storage.PostgresDSN},
		{"BREWCORE_BLOB_FS_ROOT", &c.Blob.FSRoot},
		{"BREWCORE_BLOB_S3_BUCKET", &c.Blob.S3.Bucket},
		{"BREWCORE_BLOB_S3_REGION", &c.Blob.S3.Region},
		{"BREWCORE_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint},
	}
	for _, s := range strs {
		if v, ok := lookup(s.env); ok && v != "" {
			*s.dst = v
		}
	}
	if v, ok := lookup("BREWCORE_STORAGE_DRIVER"); ok && v != "" {
		c.Storage.Driver = StorageDriver(v)
	}
	if v, ok := lookup("BREWCORE_BLOB_DRIVER"); ok && v != "" {
		c.Blob.Driver = blob.Driver(v)
	}
	if v, ok := lookup("BREWCORE_METRICS_DRIVER"); ok && v != "" {
		c.Metrics.Driver = MetricsDriver(v)
	}
	if v, ok := lookup("BREWCORE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BREWCORE_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	return nil
}

// Validate rejects unknown drivers.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %s", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob driver s3 requires a bucket")
		}
	default:
		return fmt.Errorf("unknown blob driver %s", c.Blob.Driver)
	}
	switch c.Metrics.Driver {
	case "", MetricsNone, MetricsPrometheus, MetricsExpvar:
	default:
		return fmt.Errorf("unknown metrics driver %s", c.Metrics.Driver)
	}
	return nil
}
