package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"tripsync/config"
)

func init() {
	goose.AddMigrationContext(upAddDocumentsSeqIndex, downAddDocumentsSeqIndex)
}

// snapshot reads scan one collection in seq order
func upAddDocumentsSeqIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_documents_collection_seq
			ON %s.documents (collection, seq);
	`, config.AppName))
	return err
}

func downAddDocumentsSeqIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s.idx_documents_collection_seq;`, config.AppName))
	return err
}
