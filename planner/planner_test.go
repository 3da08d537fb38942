package planner_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/completion"
	"tripsync/db/db"
	"tripsync/db/mem"
	"tripsync/model"
	"tripsync/mq/goch"
	"tripsync/packing"
	"tripsync/planner"
	"tripsync/prompt"
	"tripsync/tripdata"
	"tripsync/upload"
)

var fixedNow = time.Date(2025, 12, 28, 21, 0, 0, 0, time.UTC)

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, f upload.File) (string, error) {
	if strings.HasPrefix(f.Name, "broken") {
		return "", errors.New("timeout")
	}
	return "https://img.example/" + f.Name, nil
}

type fixture struct {
	planner *planner.Planner
	store   mem.Store
	list    *packing.List
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(fixedNow)

	feed := goch.NewChannelChangeFeed(64)
	store := mem.NewInMemoryStore(feed, mem.WithClock(clock))
	storage, err := packing.NewFileStorage(filepath.Join(t.TempDir(), "local"))
	require.NoError(t, err)
	list, err := packing.Open(ctx, storage, nil, packing.WithClock(clock))
	require.NoError(t, err)

	p, err := planner.New(planner.Config{Store: store, Packing: list, Uploader: fakeUploader{}, Clock: clock})
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))

	t.Cleanup(func() {
		p.Stop()
		store.Close()
		feed.Close()
	})

	readyCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, p.Ready(readyCtx))
	return fixture{planner: p, store: store, list: list}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}

func (f fixture) todo(id string) (model.TodoItem, bool) {
	for _, t := range f.planner.Todos.Current() {
		if t.ID == id {
			return t, true
		}
	}
	return model.TodoItem{}, false
}

func (f fixture) addMembers(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := f.planner.AddMember(context.Background(), n, "")
		require.NoError(t, err)
	}
	eventually(t, func() bool {
		have := map[string]bool{}
		for _, m := range f.planner.Members.Current() {
			have[m.Name] = true
		}
		for _, n := range names {
			if !have[n] {
				return false
			}
		}
		return true
	}, "members never arrived")
}

func TestStartAndStatus(t *testing.T) {
	f := setup(t)
	status := f.planner.Status()
	assert.Len(t, status, 5)
	for c, ready := range status {
		assert.True(t, ready, c)
	}
}

func TestTodoProgressFollowsRoster(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addMembers(t, "Alice", "Bob", "Carol")

	id, err := f.planner.AddTodo(ctx, "  買滑雪票  ", nil)
	require.NoError(t, err)
	eventually(t, func() bool { _, ok := f.todo(id); return ok }, "todo never mirrored")

	todo, _ := f.todo(id)
	assert.Equal(t, "買滑雪票", todo.Text)
	assert.Equal(t, []string{model.AllAssignees}, todo.Assignees)
	require.NotNil(t, todo.CreatedAt)
	assert.True(t, fixedNow.Equal(*todo.CreatedAt))

	require.NoError(t, f.planner.ToggleTodo(ctx, id, "Alice"))
	eventually(t, func() bool {
		todo, _ := f.todo(id)
		return completion.ForTodo(todo, f.planner.Roster()).Percent == 33
	}, "progress never reached 33")

	f.addMembers(t, "Dave")
	todo, _ = f.todo(id)
	assert.Equal(t, 25, completion.ForTodo(todo, f.planner.Roster()).Percent, "no write to the todo")

	require.NoError(t, f.planner.ToggleTodo(ctx, id, "Alice"))
	eventually(t, func() bool {
		todo, _ := f.todo(id)
		return len(todo.CompletedBy) == 0
	}, "second toggle never removed the member")
}

func TestToggleTodo_Rejects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.planner.AddTodo(ctx, "換日幣", nil)
	require.NoError(t, err)
	eventually(t, func() bool { _, ok := f.todo(id); return ok }, "todo never mirrored")

	assert.ErrorIs(t, f.planner.ToggleTodo(ctx, id, "  "), planner.ErrValidation)
	assert.ErrorIs(t, f.planner.ToggleTodo(ctx, "missing", "Alice"), db.ErrNotFound)
	todo, _ := f.todo(id)
	assert.Empty(t, todo.CompletedBy)
}

func TestAssignTodo_LastAssigneeNeedsConfirmation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.planner.AddTodo(ctx, "訂餐廳", []string{"Alice"})
	require.NoError(t, err)
	eventually(t, func() bool { _, ok := f.todo(id); return ok }, "todo never mirrored")

	require.NoError(t, f.planner.AssignTodo(ctx, id, "Bob", true, nil))
	eventually(t, func() bool { todo, _ := f.todo(id); return len(todo.Assignees) == 2 }, "Bob never assigned")

	require.NoError(t, f.planner.AssignTodo(ctx, id, "Alice", false, nil), "not the last assignee")
	eventually(t, func() bool { todo, _ := f.todo(id); return len(todo.Assignees) == 1 }, "Alice never removed")

	assert.ErrorIs(t, f.planner.AssignTodo(ctx, id, "Bob", false, prompt.Never), prompt.ErrCancelled)
	require.NoError(t, f.planner.AssignTodo(ctx, id, "Bob", false, prompt.Always))
	eventually(t, func() bool { todo, _ := f.todo(id); return len(todo.Assignees) == 0 }, "Bob never removed")
}

func TestDeleteTodo_Confirmation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.planner.AddTodo(ctx, "換日幣", nil)
	require.NoError(t, err)
	eventually(t, func() bool { _, ok := f.todo(id); return ok }, "todo never mirrored")

	assert.ErrorIs(t, f.planner.DeleteTodo(ctx, id, prompt.Never), prompt.ErrCancelled)
	require.NoError(t, f.planner.DeleteTodo(ctx, id, prompt.Always))
	eventually(t, func() bool { _, ok := f.todo(id); return !ok }, "todo never removed")

	var we *db.WriteError
	err = f.planner.DeleteTodo(ctx, id, prompt.Always)
	require.True(t, errors.As(err, &we))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.planner.AddTodo(ctx, "   ", nil)
	assert.ErrorIs(t, err, planner.ErrValidation)
	_, err = f.planner.AddShopping(ctx, planner.ShoppingInput{})
	assert.ErrorIs(t, err, planner.ErrValidation)
	_, err = f.planner.AddMember(ctx, "", "")
	assert.ErrorIs(t, err, planner.ErrValidation)
	_, err = f.planner.AddPost(ctx, "Alice", " ", nil)
	assert.ErrorIs(t, err, planner.ErrValidation)
	_, err = f.planner.AddPackingItem(ctx, "", "")
	assert.ErrorIs(t, err, planner.ErrValidation)
	assert.ErrorIs(t, f.planner.AttachPackingImage(ctx, 1, "https://x/y.png"), planner.ErrValidation)
}

func TestShoppingBuyer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.planner.AddShopping(ctx, planner.ShoppingInput{Title: "抹茶粉", SubItems: []string{"伴手禮"}})
	require.NoError(t, err)

	find := func() (model.ShoppingItem, bool) {
		for _, it := range f.planner.Shopping.Current() {
			if it.ID == id {
				return it, true
			}
		}
		return model.ShoppingItem{}, false
	}
	eventually(t, func() bool { _, ok := find(); return ok }, "item never mirrored")
	item, _ := find()
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, model.DefaultShoppingCategory, item.Category)
	assert.False(t, item.Completed)
	assert.Nil(t, item.CompletedBy)

	require.NoError(t, f.planner.SetBuyer(ctx, id, "Bob"))
	eventually(t, func() bool { it, _ := find(); return it.Completed }, "buyer never applied")
	item, _ = find()
	require.NotNil(t, item.CompletedBy)
	assert.Equal(t, "Bob", *item.CompletedBy)
	assert.True(t, completion.ShoppingConsistent(item))

	require.NoError(t, f.planner.SetBuyer(ctx, id, ""))
	eventually(t, func() bool { it, _ := find(); return !it.Completed }, "buyer never cleared")
	item, _ = find()
	assert.Nil(t, item.CompletedBy)
	assert.True(t, completion.ShoppingConsistent(item))

	require.NoError(t, f.planner.EditShopping(ctx, id, "宇治抹茶粉", []string{"伴手禮", "京都"}))
	eventually(t, func() bool { it, _ := find(); return it.Title == "宇治抹茶粉" }, "edit never applied")

	require.NoError(t, f.planner.DeleteShopping(ctx, id))
	eventually(t, func() bool { _, ok := find(); return !ok }, "item never deleted")
}

func TestAddPost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addMembers(t, "Alice")

	res, err := f.planner.AddPost(ctx, "Alice", "第一天滑雪！", []upload.File{{Name: "a.jpg"}, {Name: "broken.jpg"}, {Name: "b.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example/a.jpg", "https://img.example/b.jpg"}, res.Images)
	require.Len(t, res.Failed, 1)

	anon, err := f.planner.AddPost(ctx, "Nobody", "路人", nil)
	require.NoError(t, err)

	eventually(t, func() bool { return len(f.planner.Journal.Current()) == 2 }, "posts never mirrored")
	byID := map[string]model.JournalPost{}
	for _, p := range f.planner.Journal.Current() {
		byID[p.ID] = p
	}
	post := byID[res.ID]
	assert.Equal(t, "Alice", post.Author)
	assert.Equal(t, "https://api.dicebear.com/7.x/avataaars/svg?seed=Alice", post.Avatar)
	assert.Equal(t, 0, post.Likes)
	assert.Len(t, post.Images, 2)
	assert.Equal(t, model.UnknownAuthor, byID[anon.ID].Author)
	assert.Empty(t, byID[anon.ID].Avatar)
}

func TestMembers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addMembers(t, "Alice")

	m := f.planner.Members.Current()[0]
	assert.Equal(t, model.FlexibleID(model.NewMemberID(fixedNow)), m.MemberID)
	assert.Equal(t, model.DefaultMemberRole, m.Role)
	assert.Equal(t, "2025-12-28T21:00:00.000Z", m.JoinedAt)

	assert.ErrorIs(t, f.planner.DeleteMember(ctx, m.ID, prompt.Never), prompt.ErrCancelled)
	require.NoError(t, f.planner.DeleteMember(ctx, m.ID, prompt.Always))
	eventually(t, func() bool { return len(f.planner.Members.Current()) == 0 }, "member never removed")
}

func TestRosterChangeReconcilesPacking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	trip := &tripdata.Trip{Members: []model.Member{
		{MemberID: "1", Name: "Alice"},
		{MemberID: "2", Name: "Bob"},
		{MemberID: "3", Name: "Carol"},
	}}
	require.NoError(t, f.planner.Seed(ctx, trip))
	eventually(t, func() bool { return len(f.list.Current()[0].CheckMap) == 3 }, "packing never reconciled for seed")
	require.NoError(t, f.planner.TogglePacking(ctx, 1, "2"))

	require.NoError(t, f.planner.Seed(ctx, &tripdata.Trip{Members: []model.Member{{MemberID: "4", Name: "Dave"}}}))
	eventually(t, func() bool { return len(f.list.Current()[0].CheckMap) == 4 }, "packing never reconciled for Dave")

	for _, it := range f.list.Current() {
		assert.Contains(t, it.CheckMap, "4")
		assert.False(t, it.CheckMap["4"])
		assert.Equal(t, it.ID == 1, it.CheckMap["2"], "existing checks unchanged")
	}
}

func TestSeedItinerary(t *testing.T) {
	f := setup(t)
	trip, err := tripdata.Default()
	require.NoError(t, err)
	require.NoError(t, f.planner.Seed(context.Background(), trip))

	eventually(t, func() bool { return len(f.planner.Itinerary.Current()) == len(trip.Itinerary) }, "itinerary never mirrored")
	days := f.planner.Itinerary.Current()
	assert.Equal(t, "01/01", days[0].Date, "string order by date")
	assert.Equal(t, "01/01", days[0].ID)
	eventually(t, func() bool { return len(f.planner.Members.Current()) == 3 }, "members never mirrored")
}

func TestPackingThroughPlanner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addMembers(t, "Alice")
	key := f.planner.Roster().Keys()[0]

	item, err := f.planner.AddPackingItem(ctx, "雪鏡", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{key: false}, item.CheckMap)
	require.NoError(t, f.planner.TogglePacking(ctx, item.ID, key))
	require.NoError(t, f.planner.AttachPackingImage(ctx, item.ID, "data:image/png;base64,AA"))

	got := f.list.Current()[0]
	assert.True(t, got.CheckMap[key])
	require.NotNil(t, got.Image)

	assert.ErrorIs(t, f.planner.DeletePackingItem(ctx, item.ID, prompt.Never), prompt.ErrCancelled)
	require.NoError(t, f.planner.DeletePackingItem(ctx, item.ID, prompt.Always))
	assert.Len(t, f.list.Current(), 38)
}

func TestOfflineWriteLeavesMirror(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id, err := f.planner.AddTodo(ctx, "訂車", nil)
	require.NoError(t, err)
	eventually(t, func() bool { _, ok := f.todo(id); return ok }, "todo never mirrored")

	f.store.SetOffline(true)
	err = f.planner.EditTodo(ctx, id, "訂兩台車")
	var we *db.WriteError
	require.True(t, errors.As(err, &we))
	assert.ErrorIs(t, err, db.ErrUnavailable)

	todo, _ := f.todo(id)
	assert.Equal(t, "訂車", todo.Text, "no optimistic update")
}
