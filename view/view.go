// Package view computes the derived state rendered from mirror snapshots and
// local selection. Every function is pure and linear in the list size.
package view

import (
	"sort"

	"tripsync/completion"
	"tripsync/model"
	"tripsync/roster"
)

// AllTag selects every shopping item in the tag and category filters.
const AllTag = "全部"

// SortIncompleteFirst returns items with incomplete entries before completed
// ones, keeping snapshot order inside each partition.
func SortIncompleteFirst[T any](items []T, completed func(T) bool) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return !completed(out[i]) && completed(out[j])
	})
	return out
}

// TodoRow is one todo with its progress against the current roster.
type TodoRow struct {
	Item     model.TodoItem          `json:"item"`
	Progress completion.TodoProgress `json:"progress"`
}

// Todos filters by assignee ("" or a sentinel shows all) and sorts
// incomplete todos first.
func Todos(todos []model.TodoItem, r roster.Roster, assignee string) []TodoRow {
	rows := make([]TodoRow, 0, len(todos))
	for _, t := range todos {
		if assignee != "" && !model.IsAllSentinel(assignee) && !completion.IsAssigned(t, assignee) {
			continue
		}
		rows = append(rows, TodoRow{Item: t, Progress: completion.ForTodo(t, r)})
	}
	return SortIncompleteFirst(rows, func(row TodoRow) bool { return row.Progress.Complete() })
}

// PackingRow is one packing item as shown for a category and member filter.
type PackingRow struct {
	Item      model.PackingItem `json:"item"`
	Progress  int               `json:"progress"`
	Completed bool              `json:"completed"`
}

// Packing keeps the items of category and sorts incomplete first. member is
// a check-map key, or a sentinel for the aggregate view.
func Packing(items []model.PackingItem, r roster.Roster, category, member string) []PackingRow {
	rows := make([]PackingRow, 0, len(items))
	for _, it := range items {
		if category != "" && it.Category != category {
			continue
		}
		rows = append(rows, PackingRow{
			Item:      it,
			Progress:  completion.PackingProgress(it, r),
			Completed: completion.PackingCompleted(it, r, member),
		})
	}
	return SortIncompleteFirst(rows, func(row PackingRow) bool { return row.Completed })
}

// ShoppingTags returns the all tag followed by every distinct subItem in
// first-seen order.
func ShoppingTags(items []model.ShoppingItem) []string {
	tags := []string{AllTag}
	seen := map[string]bool{AllTag: true}
	for _, it := range items {
		for _, s := range it.SubItems {
			if !seen[s] {
				seen[s] = true
				tags = append(tags, s)
			}
		}
	}
	return tags
}

func FilterByTag(items []model.ShoppingItem, tag string) []model.ShoppingItem {
	if tag == "" || tag == AllTag {
		return items
	}
	out := make([]model.ShoppingItem, 0, len(items))
	for _, it := range items {
		for _, s := range it.SubItems {
			if s == tag {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// ShoppingCategories returns the all tag followed by each distinct category;
// items without one count as the default category.
func ShoppingCategories(items []model.ShoppingItem) []string {
	cats := []string{AllTag}
	seen := map[string]bool{AllTag: true}
	for _, it := range items {
		c := it.CategoryOrDefault()
		if !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	return cats
}

func FilterByCategory(items []model.ShoppingItem, category string) []model.ShoppingItem {
	if category == "" || category == AllTag {
		return items
	}
	out := make([]model.ShoppingItem, 0, len(items))
	for _, it := range items {
		if it.CategoryOrDefault() == category {
			out = append(out, it)
		}
	}
	return out
}

// JournalRow carries a post with the avatar to render.
type JournalRow struct {
	Post   model.JournalPost `json:"post"`
	Avatar string            `json:"avatar"`
}

// Journal resolves each post's avatar live by author name, falling back to
// the snapshot stored on the post.
func Journal(posts []model.JournalPost, r roster.Roster) []JournalRow {
	rows := make([]JournalRow, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, JournalRow{Post: p, Avatar: r.AvatarFor(p.Author, p.Avatar)})
	}
	return rows
}
