// Package live turns a document fetcher plus a change feed into snapshot
// subscriptions. Every store backend embeds a Notifier.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tripsync/db/db"
	"tripsync/mq/mq"
)

// Notifier re-reads a collection on every change message and delivers the
// full ordered snapshot to the subscriber.
type Notifier struct {
	fetcher db.Fetcher
	feed    mq.ChangeFeed
	logger  *slog.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]context.CancelFunc
}

// NewNotifier creates a notifier reading through fetcher and listening on feed.
func NewNotifier(fetcher db.Fetcher, feed mq.ChangeFeed, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		fetcher: fetcher,
		feed:    feed,
		logger:  logger,
		subs:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Subscribe starts a live query. The first snapshot on the channel is the
// current state; later snapshots follow each change of the collection.
// The channel is closed after DeSubscribe or when ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, q db.Query) (uuid.UUID, <-chan db.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return uuid.Nil, nil, &db.SubscriptionError{Collection: q.Collection, Err: err}
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan db.Snapshot, 1)
	read := func() (db.Snapshot, bool, error) {
		return n.snapshot(subCtx, q), false, nil
	}
	transform := func(msg mq.ChangeMessage) (db.Snapshot, bool, error) {
		n.logger.Debug("collection changed", "collection", msg.Collection, "action", msg.Action, "id", msg.DocumentID)
		return read()
	}

	if err := mq.SubscribeProcessor[mq.ChangeFeed, mq.ChangeMessage, db.Snapshot](subCtx, q.Collection, n.feed, read, transform, out); err != nil {
		cancel()
		return uuid.Nil, nil, &db.SubscriptionError{Collection: q.Collection, Err: err}
	}

	id := uuid.New()
	n.mu.Lock()
	n.subs[id] = cancel
	n.mu.Unlock()
	go func() {
		<-subCtx.Done()
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}()
	return id, out, nil
}

// Active returns the number of live queries not yet stopped.
func (n *Notifier) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *Notifier) snapshot(ctx context.Context, q db.Query) db.Snapshot {
	docs, err := n.fetcher.Fetch(ctx, q)
	if err != nil {
		n.logger.Warn("snapshot read failed", "collection", q.Collection, "error", err)
		return db.Snapshot{Collection: q.Collection, Err: &db.SubscriptionError{Collection: q.Collection, Err: err}}
	}
	return db.Snapshot{Collection: q.Collection, Docs: docs}
}

// DeSubscribe stops a live query started by Subscribe.
func (n *Notifier) DeSubscribe(id uuid.UUID) error {
	n.mu.Lock()
	cancel, ok := n.subs[id]
	delete(n.subs, id)
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	cancel()
	return nil
}

// Close stops every live query.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, cancel := range n.subs {
		cancel()
		delete(n.subs, id)
	}
}

// Publish announces a write on the feed. A failed publish does not undo the
// write; it is logged and the next change of the collection catches up.
func (n *Notifier) Publish(collection string, action mq.Action, id string) {
	msg := mq.ChangeMessage{Collection: collection, Action: action, DocumentID: id}
	if err := n.feed.Publish(msg); err != nil {
		n.logger.Warn("change publish failed", "collection", collection, "op", action.String(), "id", id, "error", err)
	}
}
