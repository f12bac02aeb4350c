package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/meetsmatch/matchengine/internal/telemetry"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func schemaFor(driver string) (string, error) {
	name := "schema/postgres.sql"
	if driver == DriverSQLite {
		name = "schema/sqlite.sql"
	}
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return string(raw), nil
}

// Migrate creates the decision, match and channel tables if they are missing.
// It is safe to run repeatedly.
func (db *DB) Migrate(ctx context.Context) error {
	schema, err := schemaFor(db.driver)
	if err != nil {
		return err
	}

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "database_migrate",
		"driver":    db.driver,
	})

	if _, err := db.ExecContext(ctx, schema); err != nil {
		logger.WithError(err).Error("Failed to apply schema")
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Database schema applied")
	return nil
}
