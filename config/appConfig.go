package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverParse    = "parse"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	DefaultChunkSize = 100
)

type ParseConfig struct {
	ServerURL         string        `yaml:"server_url"`
	ApplicationID     string        `yaml:"application_id"`
	JavaScriptKey     string        `yaml:"javascript_key"`
	MasterKey         string        `yaml:"master_key"`
	UseMasterKey      bool          `yaml:"use_master_key"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	PageSize          int           `yaml:"page_size"`
}

type BackendConfig struct {
	Driver   string         `yaml:"driver"`
	Parse    ParseConfig    `yaml:"parse"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type CrawlerConfig struct {
	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

type SyncConfig struct {
	ChunkSize  int           `yaml:"chunk_size"`
	RowTimeout time.Duration `yaml:"row_timeout"`
}

type LoggingConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	PublicBaseURL   string `yaml:"public_base_url"`
	PublicRead      bool   `yaml:"public_read"`
}

type AppConfig struct {
	Backend BackendConfig `yaml:"backend"`
	Crawler CrawlerConfig `yaml:"-"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Storage StorageConfig `yaml:"storage"`
}

// Default mirrors the values the scripts fell back to when no option was passed.
func Default() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			Driver: DriverParse,
			Parse: ParseConfig{
				ServerURL:      "http://localhost:12345/parse",
				ApplicationID:  "app_id",
				JavaScriptKey:  "javascript_key",
				MasterKey:      "master_key",
				RequestTimeout: 60 * time.Second,
				PageSize:       100,
			},
			Postgres: PostgresConfig{
				Host:       "localhost",
				Port:       "5432",
				User:       "postgres",
				Password:   "postgres",
				DBName:     "postgres",
				Schema:     "grocerysync",
				SessionTTL: 12 * time.Hour,
			},
		},
		Sync: SyncConfig{
			ChunkSize: DefaultChunkSize,
		},
		Logging: LoggingConfig{
			Mode:  "dev",
			Level: "info",
		},
		Storage: StorageConfig{
			PublicBaseURL: "https://storage.googleapis.com",
			PublicRead:    true,
		},
	}
}

// LoadConfig reads an optional YAML file over the defaults and then applies the environment.
// An empty filename skips the file.
func LoadConfig(filename string) (*AppConfig, error) {
	config := Default()

	if filename != "" {
		file, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *AppConfig) Validate() error {
	c.Backend.Driver = strings.ToLower(strings.TrimSpace(c.Backend.Driver))
	switch c.Backend.Driver {
	case DriverParse:
		if c.Backend.Parse.ServerURL == "" {
			return errors.New("backend.parse.server_url must be set")
		}
		if c.Backend.Parse.PageSize < 1 {
			return errors.New("backend.parse.page_size must be >= 1")
		}
	case DriverPostgres:
		if c.Backend.Postgres.JWTSecret == "" {
			return errors.New("backend.postgres.jwt_secret must be set")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown backend driver %q", c.Backend.Driver)
	}
	if c.Sync.ChunkSize < 1 {
		return fmt.Errorf("sync.chunk_size must be >= 1, got %d", c.Sync.ChunkSize)
	}
	if c.Sync.RowTimeout < 0 {
		return errors.New("sync.row_timeout must not be negative")
	}
	return nil
}
