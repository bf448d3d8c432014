package infrastructure

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"grocerysync/pkg/logger"
)

const (
	ObjectStoreSchemaMigration = "objectstore.schema"
	ObjectsTableMigration      = "objectstore.objects"
	UsersTableMigration        = "objectstore.users"
	ObjectsIndexMigration      = "objectstore.objects_data_idx"
)

type MigrationsSchema struct{}

func (m *MigrationsSchema) UpMigration(db *sql.DB, _ logger.Logger) error {
	_, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS migrations;`)
	if err != nil {
		return fmt.Errorf("failed to create migrations schema: %w", err)
	}
	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS migrations.migrations (
            id SERIAL PRIMARY KEY,
            time TIMESTAMP NOT NULL,
            name VARCHAR(255) UNIQUE NOT NULL
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// checkAndSkipMigration reports whether name has already been applied.
func checkAndSkipMigration(db *sql.DB, log logger.Logger, name string) (bool, error) {
	var migrationExists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM migrations.migrations WHERE name = $1)", name).Scan(&migrationExists)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status for %s: %w", name, err)
	}
	if migrationExists {
		log.Info("migration already completed, skipping", "migration", name)
	}
	return migrationExists, nil
}

func executeAndMarkMigration(db *sql.DB, log logger.Logger, name string, queries ...string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer tx.Rollback()

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to apply %s: %w", name, err)
		}
	}
	if _, err := tx.Exec("INSERT INTO migrations.migrations (name, time) VALUES ($1, current_timestamp)", name); err != nil {
		return fmt.Errorf("failed to mark '%s' migration as complete: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}

	log.Info("migration completed", "migration", name)
	return nil
}

func runOnce(db *sql.DB, log logger.Logger, name string, queries ...string) error {
	done, err := checkAndSkipMigration(db, log, name)
	if err != nil || done {
		return err
	}
	return executeAndMarkMigration(db, log, name, queries...)
}

type ObjectStoreSchema struct {
	Schema string
}

func (m *ObjectStoreSchema) UpMigration(db *sql.DB, log logger.Logger) error {
	return runOnce(db, log, ObjectStoreSchemaMigration+"."+m.Schema,
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pq.QuoteIdentifier(m.Schema)))
}

// ObjectsTable holds every class. Documents are schemaless JSONB keyed by (class, id).
type ObjectsTable struct {
	Schema string
}

func (m *ObjectsTable) UpMigration(db *sql.DB, log logger.Logger) error {
	schema := pq.QuoteIdentifier(m.Schema)
	return runOnce(db, log, ObjectsTableMigration+"."+m.Schema, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.objects (
            class VARCHAR(100) NOT NULL,
            id VARCHAR(64) NOT NULL,
            data JSONB NOT NULL DEFAULT '{}'::jsonb,
            acl JSONB,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP NOT NULL,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP NOT NULL,
            PRIMARY KEY (class, id)
        );
    `, schema))
}

type ObjectsDataIndex struct {
	Schema string
}

func (m *ObjectsDataIndex) UpMigration(db *sql.DB, log logger.Logger) error {
	schema := pq.QuoteIdentifier(m.Schema)
	return runOnce(db, log, ObjectsIndexMigration+"."+m.Schema,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS objects_data_gin_idx ON %s.objects USING GIN (data jsonb_path_ops);`, schema))
}

type UsersTable struct {
	Schema string
}

func (m *UsersTable) UpMigration(db *sql.DB, log logger.Logger) error {
	schema := pq.QuoteIdentifier(m.Schema)
	return runOnce(db, log, UsersTableMigration+"."+m.Schema, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.users (
            id VARCHAR(64) PRIMARY KEY,
            username VARCHAR(255) NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP NOT NULL
        );
    `, schema))
}
