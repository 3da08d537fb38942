package packing_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/model"
	"tripsync/packing"
	"tripsync/prompt"
)

var fixedNow = time.Date(2025, 12, 20, 22, 0, 0, 0, time.UTC)

// memStorage is a Storage that can be told to fail.
type memStorage struct {
	data  map[string][]byte
	saves int
	fail  error
}

func newMemStorage() *memStorage { return &memStorage{data: map[string][]byte{}} }

func (m *memStorage) Load(_ context.Context, key string) ([]byte, error) {
	b, ok := m.data[key]
	if !ok {
		return nil, packing.ErrNoData
	}
	return b, nil
}

func (m *memStorage) Save(_ context.Context, key string, value []byte) error {
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStorage) stored(t *testing.T) []model.PackingItem {
	t.Helper()
	var items []model.PackingItem
	require.NoError(t, json.Unmarshal(m.data[packing.StorageKey], &items))
	return items
}

func openList(t *testing.T, s packing.Storage, keys ...string) *packing.List {
	t.Helper()
	l, err := packing.Open(context.Background(), s, keys, packing.WithClock(clockwork.NewFakeClockAt(fixedNow)))
	require.NoError(t, err)
	return l
}

func TestOpen_SeedsOnFirstUse(t *testing.T) {
	s := newMemStorage()
	l := openList(t, s, "1", "2", "3")

	items := l.Current()
	require.Len(t, items, 38)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, "晶片護照", items[0].Name)
	assert.Equal(t, "所有底片要放手提！", items[12].Note)
	assert.Equal(t, "雪球夾", items[37].Name)
	for _, it := range items {
		assert.Equal(t, packing.DefaultCategory, it.Category)
		assert.Equal(t, map[string]bool{"1": false, "2": false, "3": false}, it.CheckMap)
		assert.Nil(t, it.Image)
	}
	assert.Len(t, s.stored(t), 38, "seed is written through")
}

func TestOpen_HydratesStoredList(t *testing.T) {
	s := newMemStorage()
	body, err := json.Marshal([]model.PackingItem{{ID: 7, Name: "雪鏡", Category: packing.DefaultCategory, CheckMap: map[string]bool{"1": true}}})
	require.NoError(t, err)
	s.data[packing.StorageKey] = body

	l := openList(t, s, "1")
	items := l.Current()
	require.Len(t, items, 1)
	assert.Equal(t, "雪鏡", items[0].Name)
	assert.Equal(t, 0, s.saves, "nothing to reconcile, nothing written")
}

func TestOpen_CorruptData(t *testing.T) {
	s := newMemStorage()
	s.data[packing.StorageKey] = []byte("{not json")
	_, err := packing.Open(context.Background(), s, nil)
	assert.Error(t, err)
}

func TestReconcile_AddsNewMemberOnly(t *testing.T) {
	s := newMemStorage()
	l := openList(t, s, "1", "2", "3")
	ctx := context.Background()
	require.NoError(t, l.Toggle(ctx, 1, "2"))

	changed, err := l.Reconcile(ctx, []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	assert.True(t, changed)

	for _, it := range s.stored(t) {
		require.Len(t, it.CheckMap, 4)
		assert.False(t, it.CheckMap["4"])
		if it.ID == 1 {
			assert.True(t, it.CheckMap["2"], "existing entry untouched")
		}
	}

	changed, err = l.Reconcile(ctx, []string{"1", "4"})
	require.NoError(t, err)
	assert.False(t, changed, "removed members are not pruned")
	assert.Len(t, l.Current()[0].CheckMap, 4)
}

func TestAdd_PrependsWithMillisID(t *testing.T) {
	s := newMemStorage()
	l := openList(t, s, "1")
	ctx := context.Background()

	first, err := l.Add(ctx, "  雪鏡  ", "", []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, fixedNow.UnixMilli(), first.ID)
	assert.Equal(t, "雪鏡", first.Name)
	assert.Equal(t, packing.DefaultCategory, first.Category)
	assert.Equal(t, map[string]bool{"1": false, "2": false}, first.CheckMap)

	second, err := l.Add(ctx, "毛帽", packing.DefaultCategory, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, fixedNow.UnixMilli()+1, second.ID, "same millisecond bumps the id")

	items := l.Current()
	assert.Equal(t, second.ID, items[0].ID)
	assert.Equal(t, first.ID, items[1].ID)
	assert.Len(t, s.stored(t), 40)

	_, err = l.Add(ctx, "   ", "", nil)
	assert.ErrorIs(t, err, packing.ErrEmptyName)
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	s := newMemStorage()
	l := openList(t, s, "1")
	ctx := context.Background()

	assert.ErrorIs(t, l.Delete(ctx, 5, prompt.Never), prompt.ErrCancelled)
	assert.Len(t, l.Current(), 38)

	require.NoError(t, l.Delete(ctx, 5, prompt.Always))
	assert.Len(t, l.Current(), 37)
	assert.Len(t, s.stored(t), 37)

	assert.ErrorIs(t, l.Delete(ctx, 5, prompt.Always), packing.ErrItemNotFound)
}

func TestToggleAndAttachImage(t *testing.T) {
	s := newMemStorage()
	l := openList(t, s, "1", "2")
	ctx := context.Background()

	require.NoError(t, l.Toggle(ctx, 3, "1"))
	assert.True(t, s.stored(t)[2].CheckMap["1"])
	require.NoError(t, l.Toggle(ctx, 3, "1"))
	assert.False(t, s.stored(t)[2].CheckMap["1"])

	require.NoError(t, l.AttachImage(ctx, 3, "data:image/jpeg;base64,/9j/"))
	img := s.stored(t)[2].Image
	require.NotNil(t, img)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", *img)

	assert.ErrorIs(t, l.Toggle(ctx, 999, "1"), packing.ErrItemNotFound)
}

func TestFailedSaveLeavesListUnchanged(t *testing.T) {
	s := newMemStorage()
	l := openList(t, s, "1")
	ctx := context.Background()

	boom := errors.New("disk full")
	s.fail = boom
	assert.ErrorIs(t, l.Toggle(ctx, 1, "1"), boom)
	assert.False(t, l.Current()[0].CheckMap["1"])

	_, err := l.Add(ctx, "雪鏡", "", nil)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, l.Current(), 38)
}

func TestCurrentReturnsCopies(t *testing.T) {
	l := openList(t, newMemStorage(), "1")
	items := l.Current()
	items[0].CheckMap["1"] = true
	assert.False(t, l.Current()[0].CheckMap["1"])
}
