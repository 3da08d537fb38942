// Package planner is the application service of a trip. It owns one mirror
// per synchronised collection plus the local packing list, and forwards
// every mutation to the store. Mirrors change only when the store's next
// snapshot arrives.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"tripsync/db/db"
	"tripsync/mirror"
	"tripsync/model"
	"tripsync/packing"
	"tripsync/roster"
	"tripsync/upload"
)

// ErrValidation is returned for input rejected before any write.
var ErrValidation = errors.New("invalid input")

// Lister is the read side shared by remote mirrors and the local packing
// list, so views do not care which store backs a list.
type Lister[T any] interface {
	Current() []T
}

var (
	_ Lister[model.TodoItem]    = (*mirror.Mirror[model.TodoItem])(nil)
	_ Lister[model.PackingItem] = (*packing.List)(nil)
)

type Config struct {
	Store    db.EntityStore
	Packing  *packing.List
	Uploader upload.Uploader
	Bookings []model.Booking
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

type Planner struct {
	store    db.EntityStore
	packing  *packing.List
	uploader upload.Uploader
	bookings []model.Booking
	clock    clockwork.Clock
	logger   *slog.Logger
	// only touched by the members mirror goroutine
	reconcileRetry bool

	Itinerary *mirror.Mirror[model.ItineraryDay]
	Todos     *mirror.Mirror[model.TodoItem]
	Shopping  *mirror.Mirror[model.ShoppingItem]
	Journal   *mirror.Mirror[model.JournalPost]
	Members   *mirror.Mirror[model.Member]
}

// Queries of the five synchronised collections.
var (
	ItineraryQuery = db.Query{Collection: db.CollectionItinerary, OrderBy: model.FieldDate, Direction: db.Asc}
	TodosQuery     = db.Query{Collection: db.CollectionTodos, OrderBy: model.FieldCreatedAt, Direction: db.Desc}
	ShoppingQuery  = db.Query{Collection: db.CollectionShopping, OrderBy: model.FieldCreatedAt, Direction: db.Desc}
	JournalQuery   = db.Query{Collection: db.CollectionJournal, OrderBy: model.FieldCreatedAt, Direction: db.Desc}
	MembersQuery   = db.Query{Collection: db.CollectionMembers}
)

func New(cfg Config) (*Planner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("planner: store is required")
	}
	if cfg.Packing == nil {
		return nil, fmt.Errorf("planner: packing list is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Planner{
		store:    cfg.Store,
		packing:  cfg.Packing,
		uploader: cfg.Uploader,
		bookings: cfg.Bookings,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	p.Itinerary = mirror.New(cfg.Store, ItineraryQuery, model.DecodeItinerary, mirror.WithLogger[model.ItineraryDay](p.logger))
	p.Todos = mirror.New(cfg.Store, TodosQuery, model.DecodeTodo, mirror.WithLogger[model.TodoItem](p.logger))
	p.Shopping = mirror.New(cfg.Store, ShoppingQuery, model.DecodeShopping, mirror.WithLogger[model.ShoppingItem](p.logger))
	p.Journal = mirror.New(cfg.Store, JournalQuery, model.DecodeJournal, mirror.WithLogger[model.JournalPost](p.logger))
	p.Members = mirror.New(cfg.Store, MembersQuery, model.DecodeMember,
		mirror.WithLogger[model.Member](p.logger),
		mirror.WithOnApply(p.reconcilePacking),
	)
	return p, nil
}

// reconcilePacking gives every current member a check-map entry when the
// roster snapshot created or changed a member. Deletions never prune, so a
// snapshot that only removed members is skipped. A failed reconcile is
// retried on the next snapshot.
func (p *Planner) reconcilePacking(c mirror.Change[model.Member]) {
	if !p.reconcileRetry && len(c.Summary.Created) == 0 && len(c.Summary.Updated) == 0 {
		p.logger.Debug("roster unchanged, packing reconcile skipped", "deleted", len(c.Summary.Deleted))
		return
	}
	keys := roster.New(c.Items).Keys()
	changed, err := p.packing.Reconcile(context.Background(), keys)
	if err != nil {
		p.reconcileRetry = true
		p.logger.Error("packing reconcile failed", "members", len(keys), "error", err)
		return
	}
	p.reconcileRetry = false
	if changed {
		p.logger.Info("packing list extended for roster", "created", c.Summary.Created, "updated", c.Summary.Updated, "members", len(keys))
	}
}

type starter interface {
	Start(ctx context.Context) error
	Stop() error
	Ready() <-chan struct{}
	Collection() string
}

func (p *Planner) mirrors() []starter {
	return []starter{p.Members, p.Itinerary, p.Todos, p.Shopping, p.Journal}
}

// Start subscribes every collection. On failure the mirrors already started
// are stopped again.
func (p *Planner) Start(ctx context.Context) error {
	var started []starter
	for _, m := range p.mirrors() {
		if err := m.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop()
			}
			return fmt.Errorf("start %s: %w", m.Collection(), err)
		}
		started = append(started, m)
	}
	p.logger.Info("planner started", "collections", len(started))
	return nil
}

// Stop tears down every subscription.
func (p *Planner) Stop() {
	for _, m := range p.mirrors() {
		if err := m.Stop(); err != nil && !errors.Is(err, mirror.ErrNotStarted) {
			p.logger.Warn("stop mirror", "collection", m.Collection(), "error", err)
		}
	}
}

// Ready blocks until every collection has applied its first snapshot.
func (p *Planner) Ready(ctx context.Context) error {
	for _, m := range p.mirrors() {
		select {
		case <-m.Ready():
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", m.Collection(), ctx.Err())
		}
	}
	return nil
}

// Status reports, per collection, whether the first snapshot has arrived.
func (p *Planner) Status() map[string]bool {
	out := make(map[string]bool, 5)
	for _, m := range p.mirrors() {
		select {
		case <-m.Ready():
			out[m.Collection()] = true
		default:
			out[m.Collection()] = false
		}
	}
	return out
}

func (p *Planner) Roster() roster.Roster {
	return roster.New(p.Members.Current())
}

func (p *Planner) Bookings() []model.Booking {
	out := make([]model.Booking, len(p.bookings))
	copy(out, p.bookings)
	return out
}

func (p *Planner) Packing() *packing.List {
	return p.packing
}

// logWrite logs a failed write with its location before it is returned.
func (p *Planner) logWrite(err error, op, collection, id string) error {
	if err == nil {
		return nil
	}
	p.logger.Error("write failed", "op", op, "collection", collection, "id", id, "error", err)
	return err
}
