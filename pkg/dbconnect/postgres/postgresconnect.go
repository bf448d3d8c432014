package postgres

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"grocerysync/config"
	"grocerysync/pkg/logger"
)

const (
	dbMaxOpenConns = 20
	dbMaxIdleConns = 5
)

type PostgresDatabase struct {
	config.DbConfig
	log        logger.Logger
	maxRetries int
	retryDelay time.Duration

	db *sqlx.DB
	mu sync.Mutex
}

func NewPgConnector(dbConfig config.DbConfig, log logger.Logger) *PostgresDatabase {
	return &PostgresDatabase{
		DbConfig:   dbConfig,
		log:        log.WithPrefix("postgres"),
		maxRetries: 10,
		retryDelay: 5 * time.Second,
	}
}

// WithRetries overrides how many times Connect tries before giving up.
func (pg *PostgresDatabase) WithRetries(attempts int, delay time.Duration) *PostgresDatabase {
	if attempts > 0 {
		pg.maxRetries = attempts
	}
	pg.retryDelay = delay
	return pg
}

func (pg *PostgresDatabase) Connect() (*sqlx.DB, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.db != nil {
		return pg.db, nil
	}

	var err error
	conStr := pg.GetConnectionString()

	for i := 0; i < pg.maxRetries; i++ {
		var db *sqlx.DB
		db, err = sqlx.Open("postgres", conStr)
		if err != nil {
			pg.log.Warn("failed to open postgres", "attempt", i+1, "of", pg.maxRetries, "error", err)
			time.Sleep(pg.retryDelay)
			continue
		}

		db.SetMaxOpenConns(dbMaxOpenConns)
		db.SetMaxIdleConns(dbMaxIdleConns)

		if err = db.Ping(); err != nil {
			pg.log.Warn("failed to ping postgres", "attempt", i+1, "of", pg.maxRetries, "error", err)
			db.Close()
			time.Sleep(pg.retryDelay)
			continue
		}

		pg.log.Info("connected to postgres")
		pg.db = db
		return pg.db, nil
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", pg.maxRetries, err)
}

func (pg *PostgresDatabase) Ping() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.db == nil {
		return fmt.Errorf("database connection is not established")
	}

	if err := pg.db.Ping(); err != nil {
		pg.db.Close()
		pg.db = nil
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (pg *PostgresDatabase) Close() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if pg.db == nil {
		return nil
	}
	err := pg.db.Close()
	pg.db = nil
	return err
}
