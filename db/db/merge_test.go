package db_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tripsync/db/db"
)

var testNow = time.Date(2025, 12, 30, 8, 0, 0, 0, time.UTC)

func TestMergeFields_PlainFieldsLastWriterWins(t *testing.T) {
	existing := db.Fields{"text": "old", "keep": 1}
	merged := db.MergeFields(existing, db.Fields{"text": "new"}, testNow)

	assert.Equal(t, "new", merged["text"])
	assert.Equal(t, 1, merged["keep"])
	assert.Equal(t, "old", existing["text"], "existing document must not be modified")
}

func TestMergeFields_ArrayUnionAndRemove(t *testing.T) {
	existing := db.Fields{"completedBy": []string{"Alice"}}

	merged := db.MergeFields(existing, db.Fields{"completedBy": db.ArrayUnion("Bob", "Alice")}, testNow)
	assert.Equal(t, []any{"Alice", "Bob"}, merged["completedBy"])

	merged = db.MergeFields(merged, db.Fields{"completedBy": db.ArrayRemove("Alice")}, testNow)
	assert.Equal(t, []any{"Bob"}, merged["completedBy"])

	// removing an absent value is a no-op
	merged = db.MergeFields(merged, db.Fields{"completedBy": db.ArrayRemove("Carol")}, testNow)
	assert.Equal(t, []any{"Bob"}, merged["completedBy"])
}

func TestMergeFields_ArrayOpsOnMissingField(t *testing.T) {
	merged := db.MergeFields(nil, db.Fields{
		"a": db.ArrayUnion("x"),
		"b": db.ArrayRemove("y"),
	}, testNow)
	assert.Equal(t, []any{"x"}, merged["a"])
	assert.Equal(t, []any{}, merged["b"])
}

func TestMergeFields_SetOperatorsCommute(t *testing.T) {
	base := db.Fields{"completedBy": []any{}}
	ops := []db.Fields{
		{"completedBy": db.ArrayUnion("Alice")},
		{"completedBy": db.ArrayUnion("Bob")},
		{"completedBy": db.ArrayRemove("Alice")},
	}

	forward := base
	for _, op := range ops {
		forward = db.MergeFields(forward, op, testNow)
	}
	// Bob's toggle interleaved anywhere gives the same set
	interleaved := db.MergeFields(base, ops[0], testNow)
	interleaved = db.MergeFields(interleaved, ops[2], testNow)
	interleaved = db.MergeFields(interleaved, ops[1], testNow)

	assert.ElementsMatch(t, forward["completedBy"], interleaved["completedBy"])
	assert.Equal(t, []any{"Bob"}, forward["completedBy"])
}

func TestResolveCreate_ServerTimestamp(t *testing.T) {
	fields := db.ResolveCreate(db.Fields{"createdAt": db.ServerTimestamp(), "text": "x"}, testNow)
	assert.Equal(t, testNow, fields["createdAt"])
	assert.Equal(t, "x", fields["text"])
}

func TestSortDocuments(t *testing.T) {
	docs := []db.Document{
		{ID: "b", Fields: db.Fields{"date": "2025-12-31"}},
		{ID: "a", Fields: db.Fields{"date": "2025-12-30"}},
		{ID: "none", Fields: db.Fields{}},
		{ID: "c", Fields: db.Fields{"date": "2026-01-01"}},
	}

	db.SortDocuments(docs, db.Query{Collection: "itinerary", OrderBy: "date", Direction: db.Asc})
	ids := []string{}
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"none", "a", "b", "c"}, ids)

	db.SortDocuments(docs, db.Query{Collection: "itinerary", OrderBy: "date", Direction: db.Desc})
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, "none", docs[3].ID)
}

func TestSortDocuments_TimestampsAsStringsAndTimes(t *testing.T) {
	// JSON round trips turn timestamps into RFC3339 strings with variable precision
	docs := []db.Document{
		{ID: "early", Fields: db.Fields{"createdAt": "2025-12-30T08:00:05.1Z"}},
		{ID: "late", Fields: db.Fields{"createdAt": "2025-12-30T08:00:05.12Z"}},
		{ID: "latest", Fields: db.Fields{"createdAt": testNow.Add(time.Hour)}},
	}
	db.SortDocuments(docs, db.Query{Collection: "todos", OrderBy: "createdAt", Direction: db.Desc})
	assert.Equal(t, "latest", docs[0].ID)
	assert.Equal(t, "late", docs[1].ID)
	assert.Equal(t, "early", docs[2].ID)
}

func TestSortDocuments_StableTies(t *testing.T) {
	docs := []db.Document{
		{ID: "1", Fields: db.Fields{"n": 1}},
		{ID: "2", Fields: db.Fields{"n": 1.0}},
		{ID: "3", Fields: db.Fields{"n": 0}},
	}
	db.SortDocuments(docs, db.Query{Collection: "x", OrderBy: "n"})
	assert.Equal(t, "3", docs[0].ID)
	assert.Equal(t, "1", docs[1].ID)
	assert.Equal(t, "2", docs[2].ID)
}

func TestQueryValidate(t *testing.T) {
	assert.NoError(t, db.Query{Collection: "todos"}.Validate())
	assert.ErrorIs(t, db.Query{}.Validate(), db.ErrInvalidQuery)
	assert.ErrorIs(t, db.Query{Collection: "todos", Direction: 7}.Validate(), db.ErrInvalidQuery)
}

func TestWrapWrite(t *testing.T) {
	assert.NoError(t, db.WrapWrite("update", "todos", "1", nil))

	err := db.WrapWrite("update", "todos", "1", db.ErrNotFound)
	var we *db.WriteError
	assert.ErrorAs(t, err, &we)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Equal(t, "update todos/1: document not found", err.Error())

	// already wrapped errors are not wrapped twice
	assert.Same(t, err, db.WrapWrite("update", "todos", "1", err))
}
