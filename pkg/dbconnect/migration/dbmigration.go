package migration

import (
	"database/sql"
	"fmt"
	"reflect"

	"grocerysync/pkg/logger"
)

type MigrationInterface interface {
	UpMigration(*sql.DB, logger.Logger) error
}

// Apply runs migrations in order and stops at the first failure.
func Apply(db *sql.DB, log logger.Logger, migrations ...MigrationInterface) error {
	for _, m := range migrations {
		name := reflect.TypeOf(m).Elem().Name()
		if err := m.UpMigration(db, log); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}
