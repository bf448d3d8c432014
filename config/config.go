package config

import (
	"fmt"
	"time"
)

type DbConfig interface {
	GetConnectionString() string
}

// PostgresConfig represents the configuration needed to connect to the PostgreSQL object store
type PostgresConfig struct {
	Host       string        `yaml:"host"`
	Port       string        `yaml:"port"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	DBName     string        `yaml:"dbname"`
	SSLMode    string        `yaml:"sslmode"`
	Schema     string        `yaml:"schema"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

func (pc *PostgresConfig) GetConnectionString() string {
	sslMode := pc.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, sslMode)
}
