package live_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/db/db"
	"tripsync/db/live"
	"tripsync/mq/goch"
	"tripsync/mq/mq"
)

type stubFetcher struct {
	mu    sync.Mutex
	docs  []db.Document
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, _ db.Query) ([]db.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]db.Document(nil), f.docs...), nil
}

func (f *stubFetcher) set(docs []db.Document, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs, f.err = docs, err
}

func recv(t *testing.T, ch <-chan db.Snapshot) db.Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok)
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return db.Snapshot{}
}

func TestNotifier_InitialSnapshotThenChanges(t *testing.T) {
	feed := goch.NewChannelChangeFeed(8)
	defer feed.Close()
	fetcher := &stubFetcher{docs: []db.Document{{ID: "a"}}}
	n := live.NewNotifier(fetcher, feed, nil)
	defer n.Close()

	_, ch, err := n.Subscribe(context.Background(), db.Query{Collection: "todos"})
	require.NoError(t, err)

	snap := recv(t, ch)
	assert.Equal(t, "todos", snap.Collection)
	require.Len(t, snap.Docs, 1)

	fetcher.set([]db.Document{{ID: "a"}, {ID: "b"}}, nil)
	n.Publish("todos", mq.ActionCreate, "b")
	snap = recv(t, ch)
	assert.Len(t, snap.Docs, 2)
}

func TestNotifier_FetchFailureBecomesSnapshotError(t *testing.T) {
	feed := goch.NewChannelChangeFeed(8)
	defer feed.Close()
	fetcher := &stubFetcher{}
	n := live.NewNotifier(fetcher, feed, nil)
	defer n.Close()

	_, ch, err := n.Subscribe(context.Background(), db.Query{Collection: "members"})
	require.NoError(t, err)
	recv(t, ch)

	boom := errors.New("connection reset")
	fetcher.set(nil, boom)
	n.Publish("members", mq.ActionUpdate, "m1")

	snap := recv(t, ch)
	var se *db.SubscriptionError
	require.ErrorAs(t, snap.Err, &se)
	assert.Equal(t, "members", se.Collection)
	assert.ErrorIs(t, snap.Err, boom)
	assert.Nil(t, snap.Docs)
}

func TestNotifier_ContextCancelClosesChannel(t *testing.T) {
	feed := goch.NewChannelChangeFeed(8)
	defer feed.Close()
	n := live.NewNotifier(&stubFetcher{}, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	id, ch, err := n.Subscribe(ctx, db.Query{Collection: "journal"})
	require.NoError(t, err)
	recv(t, ch)
	assert.Equal(t, 1, n.Active())

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// the entry goes away without a DeSubscribe
	require.Eventually(t, func() bool { return n.Active() == 0 }, time.Second, 10*time.Millisecond)
	assert.Error(t, n.DeSubscribe(id))
}

func TestNotifier_DeSubscribeUnknown(t *testing.T) {
	feed := goch.NewChannelChangeFeed(1)
	defer feed.Close()
	n := live.NewNotifier(&stubFetcher{}, feed, nil)

	_, _, err := n.Subscribe(context.Background(), db.Query{Collection: "todos", Direction: db.Direction(9)})
	assert.ErrorIs(t, err, db.ErrInvalidQuery)

	id, _, err := n.Subscribe(context.Background(), db.Query{Collection: "todos"})
	require.NoError(t, err)
	assert.NoError(t, n.DeSubscribe(id))
	assert.Error(t, n.DeSubscribe(id))
}
