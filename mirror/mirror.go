// Package mirror keeps a local, read-only copy of one remote collection.
//
// A Mirror subscribes once, replaces its contents wholesale on every
// snapshot and never patches records locally. Writes go to the store; their
// effect shows up here only when the next snapshot arrives.
package mirror

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	odiff "github.com/r3labs/diff/v3"

	"tripsync/db/db"
	"tripsync/libs/diff"
)

// State is the synchronisation phase of a mirror.
type State int

const (
	Uninitialized State = iota
	Syncing
	Synced
)

func (s State) String() string {
	switch s {
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	default:
		return "uninitialized"
	}
}

var (
	ErrAlreadyStarted = errors.New("mirror already started")
	ErrNotStarted     = errors.New("mirror not started")
)

// Decoder converts one store document into a record.
type Decoder[T any] func(db.Document) (T, error)

// Change is handed to apply hooks after a snapshot replaced the mirror.
type Change[T any] struct {
	Collection string
	Items      []T
	Summary    diff.Summary
	Changelog  odiff.Changelog
}

// ApplyFunc observes applied snapshots. Hooks run on the mirror's goroutine,
// one at a time, in registration order.
type ApplyFunc[T any] func(Change[T])

type Option[T any] func(*Mirror[T])

func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(m *Mirror[T]) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithOnApply[T any](fn ApplyFunc[T]) Option[T] {
	return func(m *Mirror[T]) {
		m.hooks = append(m.hooks, fn)
	}
}

type Mirror[T any] struct {
	store  db.Subscriber
	query  db.Query
	decode Decoder[T]
	logger *slog.Logger
	hooks  []ApplyFunc[T]

	mu    sync.RWMutex
	state State
	items []T
	docs  []db.Document
	subID uuid.UUID
	done  chan struct{}
	// stopping is set by Stop; a stream that ends without it leaves the mirror stale
	stopping bool
	stale    bool

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a mirror for query q. Nothing is read until Start.
func New[T any](store db.Subscriber, q db.Query, decode Decoder[T], opts ...Option[T]) *Mirror[T] {
	m := &Mirror[T]{
		store:  store,
		query:  q,
		decode: decode,
		logger: slog.Default(),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("collection", q.Collection)
	return m
}

// Start opens the subscription. It returns once the listener is registered;
// the first snapshot arrives asynchronously and closes Ready.
func (m *Mirror[T]) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return ErrAlreadyStarted
	}

	id, ch, err := m.store.Subscribe(ctx, m.query)
	if err != nil {
		m.logger.Error("subscribe failed", "error", err)
		var se *db.SubscriptionError
		if errors.As(err, &se) {
			return err
		}
		return &db.SubscriptionError{Collection: m.query.Collection, Err: err}
	}
	m.subID = id
	m.done = make(chan struct{})
	m.stale = false
	if m.state == Uninitialized {
		m.state = Syncing
	}

	go m.run(ch, m.done)
	return nil
}

func (m *Mirror[T]) run(ch <-chan db.Snapshot, done chan struct{}) {
	defer close(done)
	for snap := range ch {
		m.apply(snap)
	}

	m.mu.Lock()
	lost := !m.stopping
	m.stale = lost
	state, id := m.state, m.subID
	m.mu.Unlock()
	if lost {
		m.logger.Warn("snapshot stream closed before stop, mirror is stale", "state", state.String(), "id", id)
	}
}

func (m *Mirror[T]) apply(snap db.Snapshot) {
	if snap.Err != nil {
		// keep the last good snapshot
		m.logger.Warn("snapshot failed, keeping previous mirror", "error", snap.Err)
		return
	}

	items := make([]T, 0, len(snap.Docs))
	docs := make([]db.Document, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		item, err := m.decode(doc)
		if err != nil {
			m.logger.Warn("skipping malformed document", "id", doc.ID, "error", err)
			continue
		}
		items = append(items, item)
		docs = append(docs, doc)
	}

	m.mu.Lock()
	prev := m.docs
	m.items = items
	m.docs = docs
	m.state = Synced
	m.mu.Unlock()
	m.readyOnce.Do(func() { close(m.ready) })

	if len(m.hooks) == 0 {
		return
	}
	cl, sum, err := diff.Snapshots(prev, docs)
	if err != nil {
		// without a diff every document counts as new
		m.logger.Debug("snapshot diff failed", "error", err)
		sum = diff.Summary{Created: docIDs(docs)}
	}
	change := Change[T]{Collection: m.query.Collection, Items: cloneSlice(items), Summary: sum, Changelog: cl}
	for _, hook := range m.hooks {
		hook(change)
	}
}

// Stop cancels the subscription and waits for the listener to finish.
// The last applied snapshot stays readable.
func (m *Mirror[T]) Stop() error {
	m.mu.Lock()
	done, id := m.done, m.subID
	if done != nil {
		m.stopping = true
	}
	m.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	if err := m.store.DeSubscribe(id); err != nil {
		m.logger.Debug("de-subscribe", "id", id, "error", err)
	}
	<-done

	m.mu.Lock()
	m.done = nil
	m.subID = uuid.Nil
	m.stopping = false
	m.mu.Unlock()
	return nil
}

// Current returns the latest applied snapshot in store order.
func (m *Mirror[T]) Current() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSlice(m.items)
}

func (m *Mirror[T]) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Stale reports whether the subscription ended without Stop, for example
// when the change feed dropped a slow listener. Current keeps the last
// snapshot but no longer follows the store.
func (m *Mirror[T]) Stale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stale
}

// Ready is closed when the first snapshot has been applied.
func (m *Mirror[T]) Ready() <-chan struct{} {
	return m.ready
}

func (m *Mirror[T]) Collection() string {
	return m.query.Collection
}

func docIDs(docs []db.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
