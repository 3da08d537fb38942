package planner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/db/mem"
	"tripsync/libs/diff"
	"tripsync/mirror"
	"tripsync/model"
	"tripsync/mq/goch"
	"tripsync/packing"
)

// flakyStorage fails Save while failing is set.
type flakyStorage struct {
	*packing.FileStorage
	mu      sync.Mutex
	failing bool
}

func (s *flakyStorage) Save(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return s.FileStorage.Save(ctx, key, value)
}

func (s *flakyStorage) fail(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func reconcileFixture(t *testing.T) (*Planner, *flakyStorage) {
	t.Helper()
	fs, err := packing.NewFileStorage(filepath.Join(t.TempDir(), "local"))
	require.NoError(t, err)
	storage := &flakyStorage{FileStorage: fs}
	list, err := packing.Open(context.Background(), storage, nil)
	require.NoError(t, err)

	feed := goch.NewChannelChangeFeed(4)
	store := mem.NewInMemoryStore(feed)
	t.Cleanup(func() {
		store.Close()
		feed.Close()
	})
	p, err := New(Config{Store: store, Packing: list})
	require.NoError(t, err)
	return p, storage
}

func hasKey(p *Planner, key string) bool {
	_, ok := p.packing.Current()[0].CheckMap[key]
	return ok
}

func TestReconcilePacking_FollowsRosterSummary(t *testing.T) {
	p, _ := reconcileFixture(t)
	alice := model.Member{ID: "d1", MemberID: "1", Name: "Alice"}
	bob := model.Member{ID: "d2", MemberID: "2", Name: "Bob"}

	p.reconcilePacking(mirror.Change[model.Member]{Items: []model.Member{alice}, Summary: diff.Summary{Created: []string{"d1"}}})
	assert.True(t, hasKey(p, "1"))

	// only deletions: nothing to add, the list is left alone
	p.reconcilePacking(mirror.Change[model.Member]{Items: []model.Member{alice, bob}, Summary: diff.Summary{Deleted: []string{"d9"}}})
	assert.False(t, hasKey(p, "2"))

	p.reconcilePacking(mirror.Change[model.Member]{Items: []model.Member{alice, bob}, Summary: diff.Summary{Updated: []string{"d2"}}})
	assert.True(t, hasKey(p, "2"))
}

func TestReconcilePacking_RetriesAfterFailure(t *testing.T) {
	p, storage := reconcileFixture(t)
	alice := model.Member{ID: "d1", MemberID: "1", Name: "Alice"}

	storage.fail(true)
	p.reconcilePacking(mirror.Change[model.Member]{Items: []model.Member{alice}, Summary: diff.Summary{Created: []string{"d1"}}})
	assert.False(t, hasKey(p, "1"))

	// the next snapshot carries no roster change but the missed reconcile runs
	storage.fail(false)
	p.reconcilePacking(mirror.Change[model.Member]{Items: []model.Member{alice}})
	assert.True(t, hasKey(p, "1"))
}
