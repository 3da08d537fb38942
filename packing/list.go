// Package packing keeps the packing checklist. The list lives only in local
// durable storage and is rewritten in full on every mutation.
package packing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"tripsync/model"
	"tripsync/prompt"
)

var (
	ErrItemNotFound = errors.New("packing item not found")
	ErrEmptyName    = errors.New("packing item name is empty")
)

type Option func(*List)

func WithClock(c clockwork.Clock) Option {
	return func(l *List) { l.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *List) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithKey(key string) Option {
	return func(l *List) { l.key = key }
}

// List is the in-process packing checklist backed by Storage.
type List struct {
	storage Storage
	key     string
	clock   clockwork.Clock
	logger  *slog.Logger

	mu    sync.Mutex
	items []model.PackingItem
}

// Open hydrates the list from storage, seeding it on first use, and makes
// sure every member in memberKeys has a check-map entry.
func Open(ctx context.Context, storage Storage, memberKeys []string, opts ...Option) (*List, error) {
	l := &List{
		storage: storage,
		key:     StorageKey,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	raw, err := storage.Load(ctx, l.key)
	switch {
	case errors.Is(err, ErrNoData):
		l.items = Seed(memberKeys)
		l.logger.Info("seeded packing list", "items", len(l.items))
		if err := l.persist(ctx, l.items); err != nil {
			return nil, err
		}
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("load packing list: %w", err)
	}

	if err := json.Unmarshal(raw, &l.items); err != nil {
		return nil, fmt.Errorf("decode packing list: %w", err)
	}
	if _, err := l.Reconcile(ctx, memberKeys); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *List) persist(ctx context.Context, items []model.PackingItem) error {
	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode packing list: %w", err)
	}
	if err := l.storage.Save(ctx, l.key, body); err != nil {
		l.logger.Error("packing list save failed", "key", l.key, "error", err)
		return err
	}
	return nil
}

// mutate applies fn to a copy of the list and commits it to memory only if
// storage accepted the new list.
func (l *List) mutate(ctx context.Context, fn func(items []model.PackingItem) ([]model.PackingItem, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := fn(cloneItems(l.items))
	if err != nil {
		return err
	}
	if err := l.persist(ctx, next); err != nil {
		return err
	}
	l.items = next
	return nil
}

// Current returns a copy of the list in display order.
func (l *List) Current() []model.PackingItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneItems(l.items)
}

// Add prepends a new unchecked item. Its id is the current unix-millis time,
// bumped past any id already in use.
func (l *List) Add(ctx context.Context, name, category string, memberKeys []string) (model.PackingItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.PackingItem{}, ErrEmptyName
	}
	if category == "" {
		category = DefaultCategory
	}
	var added model.PackingItem
	err := l.mutate(ctx, func(items []model.PackingItem) ([]model.PackingItem, error) {
		id := l.clock.Now().UnixMilli()
		for indexOf(items, id) >= 0 {
			id++
		}
		added = model.PackingItem{ID: id, Name: name, Category: category, CheckMap: uncheckedMap(memberKeys)}
		return append([]model.PackingItem{added}, items...), nil
	})
	if err != nil {
		return model.PackingItem{}, err
	}
	return added.Clone(), nil
}

// Delete removes an item after c confirms.
func (l *List) Delete(ctx context.Context, id int64, c prompt.Confirmer) error {
	l.mu.Lock()
	found := indexOf(l.items, id) >= 0
	l.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	if err := prompt.Require(ctx, c, prompt.DeletePackingItem); err != nil {
		return err
	}
	return l.mutate(ctx, func(items []model.PackingItem) ([]model.PackingItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %d", ErrItemNotFound, id)
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

// Toggle flips one member's check on an item.
func (l *List) Toggle(ctx context.Context, id int64, memberKey string) error {
	return l.update(ctx, id, func(it *model.PackingItem) {
		if it.CheckMap == nil {
			it.CheckMap = map[string]bool{}
		}
		it.CheckMap[memberKey] = !it.CheckMap[memberKey]
	})
}

// AttachImage stores dataURI as the item's image.
func (l *List) AttachImage(ctx context.Context, id int64, dataURI string) error {
	return l.update(ctx, id, func(it *model.PackingItem) {
		it.Image = &dataURI
	})
}

func (l *List) update(ctx context.Context, id int64, fn func(*model.PackingItem)) error {
	return l.mutate(ctx, func(items []model.PackingItem) ([]model.PackingItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %d", ErrItemNotFound, id)
		}
		fn(&items[i])
		return items, nil
	})
}

// Reconcile adds an unchecked entry for every member key missing from an
// item's check map. Existing entries, including those of removed members,
// are left alone. It writes only when something changed.
func (l *List) Reconcile(ctx context.Context, memberKeys []string) (bool, error) {
	changed := false
	err := l.mutateIf(ctx, func(items []model.PackingItem) []model.PackingItem {
		for i := range items {
			if items[i].CheckMap == nil {
				items[i].CheckMap = map[string]bool{}
			}
			for _, k := range memberKeys {
				if _, ok := items[i].CheckMap[k]; !ok {
					items[i].CheckMap[k] = false
					changed = true
				}
			}
		}
		if !changed {
			return nil
		}
		return items
	})
	if err != nil {
		return false, err
	}
	if changed {
		l.logger.Debug("packing list reconciled with roster", "members", len(memberKeys))
	}
	return changed, nil
}

// mutateIf is mutate for changes that may turn out to be no-ops; fn returns
// nil to skip the write.
func (l *List) mutateIf(ctx context.Context, fn func(items []model.PackingItem) []model.PackingItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := fn(cloneItems(l.items))
	if next == nil {
		return nil
	}
	if err := l.persist(ctx, next); err != nil {
		return err
	}
	l.items = next
	return nil
}

func indexOf(items []model.PackingItem, id int64) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneItems(items []model.PackingItem) []model.PackingItem {
	out := make([]model.PackingItem, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}
