package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"tripsync/config"
)

func init() {
	goose.AddMigrationContext(upInitDocuments, downInitDocuments)
}

func upInitDocuments(ctx context.Context, tx *sql.Tx) error {
	// the store connects with search_path set to the app schema
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, config.AppName))
	if err != nil {
		return err
	}

	// Create documents table
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE %s.documents (
			collection VARCHAR(64) NOT NULL,
			id VARCHAR(128) NOT NULL,
			seq BIGSERIAL NOT NULL,
			fields JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		);
	`, config.AppName))
	return err
}

func downInitDocuments(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s.documents;`, config.AppName))
	return err
}
