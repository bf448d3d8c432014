package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"grocerysync/config"
	"grocerysync/internal/auth"
	"grocerysync/internal/backend"
	"grocerysync/internal/backend/memstore"
	"grocerysync/internal/backend/parse"
	"grocerysync/internal/backend/pgstore"
	"grocerysync/internal/blob"
	"grocerysync/internal/jobs"
	"grocerysync/pkg/csvio"
	"grocerysync/pkg/dbconnect"
	"grocerysync/pkg/dbconnect/postgres"
	"grocerysync/pkg/logger"
)

// localUser is the session the memory backend runs under when no crawler account is configured.
const localUser = "grocerysync"

// wire builds the job environment for the configured backend. The returned func releases
// whatever was opened.
func wire(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*jobs.Env, func(), error) {
	env := &jobs.Env{
		Config:  cfg,
		Log:     log,
		Fetcher: csvio.NewHTTPFetcher(cfg.Backend.Parse.RequestTimeout),
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Backend.Driver {
	case config.DriverParse:
		env.Driver = parse.NewClient(cfg.Backend.Parse, log)
	case config.DriverPostgres:
		pg := &cfg.Backend.Postgres
		var conn dbconnect.Database = postgres.NewPgConnector(pg, log)
		db, err := conn.Connect()
		if err != nil {
			return nil, closeAll, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		env.DB = db
		env.Driver = pgstore.New(db, pg.Schema, auth.NewSessions(pg.JWTSecret, pg.SessionTTL), log)
	case config.DriverMemory:
		env.Driver = memstore.New()
	default:
		return nil, closeAll, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
	}

	env.LogIn = sessionFor(cfg, env.Driver)

	var (
		once     sync.Once
		uploader blob.Uploader
		gcs      *blob.GCS
		openErr  error
	)
	env.Uploader = func(ctx context.Context) (blob.Uploader, error) {
		once.Do(func() {
			if cfg.Backend.Driver == config.DriverMemory {
				uploader = blob.NewMemory(cfg.Storage.Bucket)
				return
			}
			gcs, openErr = blob.NewGCS(ctx, cfg.Storage, log)
			uploader = gcs
		})
		if openErr != nil {
			return nil, openErr
		}
		return uploader, nil
	}
	closers = append(closers, func() {
		if gcs != nil {
			if err := gcs.Close(); err != nil {
				log.Warn("close object storage", "error", err)
			}
		}
	})

	return env, closeAll, nil
}

// sessionFor logs in once with the crawler account and reuses the session. Without an account
// the parse driver falls back to the master key and the memory driver to a local user.
func sessionFor(cfg *config.AppConfig, driver backend.Driver) func(ctx context.Context) (backend.Credential, error) {
	var (
		once sync.Once
		cred backend.Credential
		err  error
	)
	return func(ctx context.Context) (backend.Credential, error) {
		once.Do(func() {
			username, password := cfg.Crawler.Username, cfg.Crawler.Password
			if username == "" {
				switch {
				case cfg.Backend.Driver == config.DriverParse && cfg.Backend.Parse.UseMasterKey:
					return
				case cfg.Backend.Driver == config.DriverMemory:
					username = localUser
				default:
					err = errors.New("CRAWLER_USERNAME and CRAWLER_PASSWORD must be set")
					return
				}
			}
			cred, err = driver.LogIn(ctx, username, password)
		})
		return cred, err
	}
}
