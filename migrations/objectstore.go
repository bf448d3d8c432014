package migrations

import (
	"database/sql"

	"grocerysync/migrations/infrastructure"
	"grocerysync/pkg/dbconnect/migration"
	"grocerysync/pkg/logger"
)

// ObjectStore lists the migrations the postgres driver needs, in order.
func ObjectStore(schema string) []migration.MigrationInterface {
	return []migration.MigrationInterface{
		&infrastructure.MigrationsSchema{},
		&infrastructure.ObjectStoreSchema{Schema: schema},
		&infrastructure.ObjectsTable{Schema: schema},
		&infrastructure.ObjectsDataIndex{Schema: schema},
		&infrastructure.UsersTable{Schema: schema},
	}
}

func UpObjectStore(db *sql.DB, schema string, log logger.Logger) error {
	return migration.Apply(db, log.WithPrefix("migrations"), ObjectStore(schema)...)
}
