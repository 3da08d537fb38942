package mem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	dbt "tripsync/db/db"
	"tripsync/db/live"
	"tripsync/mq/mq"
)

type storedDoc struct {
	seq    uint64
	fields dbt.Fields
}

// inMemoryStore is an in-memory implementation of dbt.EntityStore.
// Documents are kept per collection; seq preserves insertion order for ties.
type inMemoryStore struct {
	*live.Notifier

	collections map[string]map[string]*storedDoc
	seq         uint64
	offline     bool
	clock       clockwork.Clock
	logger      *slog.Logger

	// Mutex for thread-safety, writes and snapshot reads may come from any goroutine.
	mu sync.RWMutex
}

// Store is the in-memory entity store with its test controls.
type Store interface {
	dbt.EntityStore
	dbt.Fetcher
	// SetOffline makes every write fail with ErrUnavailable until reset.
	SetOffline(offline bool)
	Close()
}

// Option configures the in-memory store.
type Option func(*inMemoryStore)

// WithClock sets the clock used for server timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *inMemoryStore) { s.clock = clock }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *inMemoryStore) { s.logger = logger }
}

// NewInMemoryStore creates an empty store announcing writes on feed.
func NewInMemoryStore(feed mq.ChangeFeed, opts ...Option) Store {
	s := &inMemoryStore{
		collections: make(map[string]map[string]*storedDoc),
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Notifier = live.NewNotifier(s, feed, s.logger)
	return s
}

func (s *inMemoryStore) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

func (s *inMemoryStore) Close() {
	s.Notifier.Close()
}

func (s *inMemoryStore) collection(name string) map[string]*storedDoc {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*storedDoc)
		s.collections[name] = c
	}
	return c
}

func (s *inMemoryStore) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// Create stores a new document under a generated id.
func (s *inMemoryStore) Create(ctx context.Context, collection string, fields dbt.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", dbt.WrapWrite("create", collection, "", err)
	}
	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return "", dbt.WrapWrite("create", collection, "", dbt.ErrUnavailable)
	}
	id := uuid.NewString()
	s.collection(collection)[id] = &storedDoc{
		seq:    s.nextSeq(),
		fields: dbt.ResolveCreate(fields, s.clock.Now()),
	}
	s.mu.Unlock()

	s.Publish(collection, mq.ActionCreate, id)
	return id, nil
}

// Set creates or replaces the document with the given id.
func (s *inMemoryStore) Set(ctx context.Context, collection, id string, fields dbt.Fields) error {
	if id == "" {
		return dbt.WrapWrite("set", collection, id, fmt.Errorf("empty document id"))
	}
	if err := ctx.Err(); err != nil {
		return dbt.WrapWrite("set", collection, id, err)
	}
	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return dbt.WrapWrite("set", collection, id, dbt.ErrUnavailable)
	}
	docs := s.collection(collection)
	action := mq.ActionUpdate
	seq := uint64(0)
	if existing, ok := docs[id]; ok {
		seq = existing.seq
	} else {
		action = mq.ActionCreate
		seq = s.nextSeq()
	}
	docs[id] = &storedDoc{seq: seq, fields: dbt.ResolveCreate(fields, s.clock.Now())}
	s.mu.Unlock()

	s.Publish(collection, action, id)
	return nil
}

// Update merges fields into an existing document.
func (s *inMemoryStore) Update(ctx context.Context, collection, id string, fields dbt.Fields) error {
	if err := ctx.Err(); err != nil {
		return dbt.WrapWrite("update", collection, id, err)
	}
	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return dbt.WrapWrite("update", collection, id, dbt.ErrUnavailable)
	}
	doc, ok := s.collection(collection)[id]
	if !ok {
		s.mu.Unlock()
		return dbt.WrapWrite("update", collection, id, dbt.ErrNotFound)
	}
	doc.fields = dbt.MergeFields(doc.fields, fields, s.clock.Now())
	s.mu.Unlock()

	s.Publish(collection, mq.ActionUpdate, id)
	return nil
}

// Delete removes a document.
func (s *inMemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return dbt.WrapWrite("delete", collection, id, err)
	}
	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return dbt.WrapWrite("delete", collection, id, dbt.ErrUnavailable)
	}
	docs := s.collection(collection)
	if _, ok := docs[id]; !ok {
		s.mu.Unlock()
		return dbt.WrapWrite("delete", collection, id, dbt.ErrNotFound)
	}
	delete(docs, id)
	s.mu.Unlock()

	s.Publish(collection, mq.ActionDelete, id)
	return nil
}

// Fetch returns copies of every document of the query's collection in query order.
func (s *inMemoryStore) Fetch(ctx context.Context, q dbt.Query) ([]dbt.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	type entry struct {
		seq uint64
		doc dbt.Document
	}
	entries := make([]entry, 0, len(s.collections[q.Collection]))
	for id, d := range s.collections[q.Collection] {
		entries = append(entries, entry{seq: d.seq, doc: dbt.Document{ID: id, Fields: d.fields}.Clone()})
	}
	s.mu.RUnlock()

	// store-internal order is insertion order
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	docs := make([]dbt.Document, len(entries))
	for i := range entries {
		docs[i] = entries[i].doc
	}
	dbt.SortDocuments(docs, q)
	return docs, nil
}
