package pg

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbt "tripsync/db/db"
	"tripsync/db/live"
	"tripsync/mq/mq"
)

// GORMStore is a GORM-based PostgreSQL implementation of dbt.EntityStore.
// Live queries re-read the collection on every change message of the feed,
// so several server processes see each other's writes through a shared feed.
type GORMStore struct {
	*live.Notifier
	db  *gorm.DB
	now func() time.Time
}

// NewGORMStore creates and returns a new instance of GORMStore.
func NewGORMStore(db *gorm.DB, feed mq.ChangeFeed, logger *slog.Logger) *GORMStore {
	pgdb := &GORMStore{db: db, now: time.Now}
	pgdb.Notifier = live.NewNotifier(pgdb, feed, logger)
	return pgdb
}

// classify marks connection failures as ErrUnavailable.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", dbt.ErrUnavailable, err)
	}
	return err
}

// Create inserts a new document under a generated id.
func (pgdb *GORMStore) Create(ctx context.Context, collection string, fields dbt.Fields) (string, error) {
	id := uuid.NewString()
	doc := DocumentModel{
		Collection: collection,
		ID:         id,
		Fields:     datatypes.JSONMap(dbt.ResolveCreate(fields, pgdb.now())),
	}
	if result := pgdb.db.WithContext(ctx).Create(&doc); result.Error != nil {
		return "", dbt.WrapWrite("create", collection, "", classify(result.Error))
	}
	pgdb.Publish(collection, mq.ActionCreate, id)
	return id, nil
}

// Set creates or replaces the document with the given id. A replaced document keeps its position.
func (pgdb *GORMStore) Set(ctx context.Context, collection, id string, fields dbt.Fields) error {
	if id == "" {
		return dbt.WrapWrite("set", collection, id, fmt.Errorf("empty document id"))
	}
	doc := DocumentModel{
		Collection: collection,
		ID:         id,
		Fields:     datatypes.JSONMap(dbt.ResolveCreate(fields, pgdb.now())),
	}
	result := pgdb.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
	}).Create(&doc)
	if result.Error != nil {
		return dbt.WrapWrite("set", collection, id, classify(result.Error))
	}
	pgdb.Publish(collection, mq.ActionUpdate, id)
	return nil
}

// Update merges fields into the stored document. The row is locked for the
// read-merge-write so concurrent set operators on one document do not race.
func (pgdb *GORMStore) Update(ctx context.Context, collection, id string, fields dbt.Fields) error {
	err := pgdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc DocumentModel
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).
			First(&doc)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return dbt.ErrNotFound
			}
			return classify(result.Error)
		}

		merged := dbt.MergeFields(dbt.Fields(doc.Fields), fields, pgdb.now())
		result = tx.Model(&DocumentModel{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]any{"fields": datatypes.JSONMap(merged), "updated_at": pgdb.now()})
		return classify(result.Error)
	})
	if err != nil {
		return dbt.WrapWrite("update", collection, id, err)
	}
	pgdb.Publish(collection, mq.ActionUpdate, id)
	return nil
}

// Delete removes a document.
func (pgdb *GORMStore) Delete(ctx context.Context, collection, id string) error {
	result := pgdb.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&DocumentModel{})
	if result.Error != nil {
		return dbt.WrapWrite("delete", collection, id, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return dbt.WrapWrite("delete", collection, id, dbt.ErrNotFound)
	}
	pgdb.Publish(collection, mq.ActionDelete, id)
	return nil
}

// Fetch reads every document of the query's collection in query order.
func (pgdb *GORMStore) Fetch(ctx context.Context, q dbt.Query) ([]dbt.Document, error) {
	var models []DocumentModel
	result := pgdb.db.WithContext(ctx).
		Where("collection = ?", q.Collection).
		Order("seq").
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", q.Collection, classify(result.Error))
	}

	docs := make([]dbt.Document, 0, len(models))
	for _, m := range models {
		docs = append(docs, dbt.Document{ID: m.ID, Fields: dbt.Fields(m.Fields)})
	}
	// JSONB gives no useful order across value types, so ordering happens here
	dbt.SortDocuments(docs, q)
	return docs, nil
}
