package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnv overlays environment variables on top of whatever the file provided.
// Crawler credentials never live in the config file.
func (c *AppConfig) applyEnv() {
	c.Crawler.Username = getEnv("CRAWLER_USERNAME", c.Crawler.Username)
	c.Crawler.Password = getEnv("CRAWLER_PASSWORD", c.Crawler.Password)

	c.Backend.Driver = getEnv("BACKEND_DRIVER", c.Backend.Driver)

	p := &c.Backend.Parse
	p.ServerURL = getEnv("PARSE_SERVER_URL", p.ServerURL)
	p.ApplicationID = getEnv("PARSE_APPLICATION_ID", p.ApplicationID)
	p.JavaScriptKey = getEnv("PARSE_JAVASCRIPT_KEY", p.JavaScriptKey)
	p.MasterKey = getEnv("PARSE_MASTER_KEY", p.MasterKey)
	p.RequestTimeout = getEnvDuration("PARSE_REQUEST_TIMEOUT", p.RequestTimeout)

	pg := &c.Backend.Postgres
	pg.Host = getEnv("POSTGRES_HOST", pg.Host)
	pg.Port = getEnv("POSTGRES_PORT", pg.Port)
	pg.User = getEnv("POSTGRES_USER", pg.User)
	pg.Password = getEnv("POSTGRES_PASSWORD", pg.Password)
	pg.DBName = getEnv("POSTGRES_NAME", pg.DBName)
	pg.JWTSecret = getEnv("POSTGRES_JWT_SECRET", pg.JWTSecret)

	c.Sync.ChunkSize = getEnvInt("SYNC_CHUNK_SIZE", c.Sync.ChunkSize)
	c.Sync.RowTimeout = getEnvDuration("SYNC_ROW_TIMEOUT", c.Sync.RowTimeout)

	c.Logging.Mode = getEnv("LOG_MODE", c.Logging.Mode)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)

	c.Storage.Bucket = getEnv("GCS_BUCKET_NAME", c.Storage.Bucket)
	c.Storage.ProjectID = getEnv("GCS_PROJECT_ID", c.Storage.ProjectID)
	c.Storage.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.Storage.CredentialsFile)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
