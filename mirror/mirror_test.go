package mirror_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/db/db"
	"tripsync/db/mem"
	"tripsync/mirror"
	"tripsync/model"
	"tripsync/mq/goch"
)

// fakeSubscriber hands out one channel the test pushes snapshots into.
type fakeSubscriber struct {
	mu     sync.Mutex
	ch     chan db.Snapshot
	closed bool
	err    error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{ch: make(chan db.Snapshot, 4)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ db.Query) (uuid.UUID, <-chan db.Snapshot, error) {
	if f.err != nil {
		return uuid.Nil, nil, f.err
	}
	return uuid.New(), f.ch, nil
}

func (f *fakeSubscriber) DeSubscribe(uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return nil
}

func todoDoc(id, text string) db.Document {
	return db.Document{ID: id, Fields: db.Fields{model.FieldText: text, model.FieldAssignees: []any{model.AllAssignees}}}
}

func waitReady(t *testing.T, ready <-chan struct{}) {
	t.Helper()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("mirror never became ready")
	}
}

func ids(items []model.TodoItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestMirror_FullReplace(t *testing.T) {
	sub := newFakeSubscriber()
	applied := make(chan mirror.Change[model.TodoItem], 4)
	m := mirror.New(sub, db.Query{Collection: db.CollectionTodos}, model.DecodeTodo,
		mirror.WithOnApply(func(c mirror.Change[model.TodoItem]) { applied <- c }))

	assert.Equal(t, mirror.Uninitialized, m.State())
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, mirror.Syncing, m.State())

	sub.ch <- db.Snapshot{Collection: db.CollectionTodos, Docs: []db.Document{todoDoc("a", "wax"), todoDoc("b", "yen")}}
	waitReady(t, m.Ready())
	<-applied
	assert.Equal(t, mirror.Synced, m.State())
	assert.Equal(t, []string{"a", "b"}, ids(m.Current()))

	sub.ch <- db.Snapshot{Collection: db.CollectionTodos, Docs: []db.Document{todoDoc("b", "yen")}}
	change := <-applied
	assert.Equal(t, []string{"b"}, ids(m.Current()), "an id missing from the snapshot disappears")
	assert.Equal(t, []string{"a"}, change.Summary.Deleted)

	require.NoError(t, m.Stop())
	assert.Equal(t, []string{"b"}, ids(m.Current()), "last snapshot stays readable after Stop")
}

func TestMirror_KeepsLastGoodSnapshotOnError(t *testing.T) {
	sub := newFakeSubscriber()
	applied := make(chan struct{}, 4)
	m := mirror.New(sub, db.Query{Collection: db.CollectionTodos}, model.DecodeTodo,
		mirror.WithOnApply(func(mirror.Change[model.TodoItem]) { applied <- struct{}{} }))
	require.NoError(t, m.Start(context.Background()))

	sub.ch <- db.Snapshot{Docs: []db.Document{todoDoc("a", "wax")}}
	<-applied
	sub.ch <- db.Snapshot{Err: &db.SubscriptionError{Collection: db.CollectionTodos, Err: db.ErrUnavailable}}
	sub.ch <- db.Snapshot{Docs: []db.Document{todoDoc("a", "wax"), todoDoc("c", "tea")}}
	<-applied

	require.NoError(t, m.Stop())
	assert.Equal(t, []string{"a", "c"}, ids(m.Current()))
	assert.Equal(t, mirror.Synced, m.State())
}

func TestMirror_SkipsMalformedDocuments(t *testing.T) {
	sub := newFakeSubscriber()
	m := mirror.New(sub, db.Query{Collection: db.CollectionTodos}, model.DecodeTodo)
	require.NoError(t, m.Start(context.Background()))

	bad := db.Document{ID: "bad", Fields: db.Fields{model.FieldText: 42}}
	sub.ch <- db.Snapshot{Docs: []db.Document{todoDoc("a", "wax"), bad}}
	waitReady(t, m.Ready())
	require.NoError(t, m.Stop())
	assert.Equal(t, []string{"a"}, ids(m.Current()))
}

func TestMirror_StartStop(t *testing.T) {
	sub := newFakeSubscriber()
	m := mirror.New(sub, db.Query{Collection: db.CollectionTodos}, model.DecodeTodo)

	assert.ErrorIs(t, m.Stop(), mirror.ErrNotStarted)
	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), mirror.ErrAlreadyStarted)
	require.NoError(t, m.Stop())
	assert.False(t, m.Stale())
}

func TestMirror_StreamClosedWithoutStop(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	sub := newFakeSubscriber()
	m := mirror.New(sub, db.Query{Collection: db.CollectionTodos}, model.DecodeTodo, mirror.WithLogger[model.TodoItem](logger))

	require.NoError(t, m.Start(context.Background()))
	sub.ch <- db.Snapshot{Collection: db.CollectionTodos, Docs: []db.Document{todoDoc("a", "wax skis")}}
	waitReady(t, m.Ready())

	// the feed dropping a listener closes the channel under the mirror
	require.NoError(t, sub.DeSubscribe(uuid.Nil))
	require.Eventually(t, m.Stale, time.Second, 10*time.Millisecond)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "mirror is stale")
	assert.Equal(t, []string{"a"}, ids(m.Current()))

	require.NoError(t, m.Stop())
}

func TestMirror_SubscribeFailure(t *testing.T) {
	sub := newFakeSubscriber()
	sub.err = fmt.Errorf("listener: %w", db.ErrInvalidQuery)
	m := mirror.New(sub, db.Query{Collection: db.CollectionTodos}, model.DecodeTodo)

	err := m.Start(context.Background())
	var se *db.SubscriptionError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, db.ErrInvalidQuery)
	assert.Equal(t, mirror.Uninitialized, m.State())
}

func TestMirror_WithMemoryStore(t *testing.T) {
	feed := goch.NewChannelChangeFeed(16)
	store := mem.NewInMemoryStore(feed)
	t.Cleanup(func() {
		store.Close()
		feed.Close()
	})

	applied := make(chan mirror.Change[model.TodoItem], 8)
	m := mirror.New(store, db.Query{Collection: db.CollectionTodos}, model.DecodeTodo,
		mirror.WithOnApply(func(c mirror.Change[model.TodoItem]) { applied <- c }))
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })

	first := <-applied
	assert.Empty(t, first.Items)

	ctx := context.Background()
	id, err := store.Create(ctx, db.CollectionTodos, db.Fields{model.FieldText: "wax"})
	require.NoError(t, err)

	select {
	case c := <-applied:
		require.Len(t, c.Items, 1)
		assert.Equal(t, id, c.Items[0].ID)
		assert.Equal(t, []string{id}, c.Summary.Created)
	case <-time.After(time.Second):
		t.Fatal("write never reached the mirror")
	}
}
