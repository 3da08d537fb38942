package graph

import (
	"slices"
	"strings"

	"tripsync/completion"
	"tripsync/model"
	"tripsync/roster"
	"tripsync/view"
)

// Output shapes of the schema types. JSON keys are the GraphQL field names.

type CollectionStatus struct {
	Collection string `json:"collection"`
	Ready      bool   `json:"ready"`
}

type ItineraryDay struct {
	ID string `json:"id"`
	model.ItineraryDay
}

type Todo struct {
	ID string `json:"id"`
	model.TodoItem
	Progress completion.TodoProgress `json:"progress"`
}

type ShoppingItem struct {
	ID string `json:"id"`
	model.ShoppingItem
}

type JournalPost struct {
	ID string `json:"id"`
	model.JournalPost
	Avatar string `json:"avatar"`
}

type Member struct {
	DocID string `json:"docId"`
	model.Member
}

func itineraryRows(days []model.ItineraryDay) []ItineraryDay {
	out := make([]ItineraryDay, 0, len(days))
	for _, d := range days {
		out = append(out, ItineraryDay{ID: d.ID, ItineraryDay: d})
	}
	return out
}

func todoRows(todos []model.TodoItem, r roster.Roster, assignee string) []Todo {
	rows := view.Todos(todos, r, assignee)
	out := make([]Todo, 0, len(rows))
	for _, row := range rows {
		out = append(out, Todo{ID: row.Item.ID, TodoItem: row.Item, Progress: row.Progress})
	}
	return out
}

func shoppingRows(items []model.ShoppingItem, tag, category string) []ShoppingItem {
	items = view.FilterByCategory(view.FilterByTag(items, tag), category)
	items = view.SortIncompleteFirst(items, func(it model.ShoppingItem) bool { return it.Completed })
	out := make([]ShoppingItem, 0, len(items))
	for _, it := range items {
		out = append(out, ShoppingItem{ID: it.ID, ShoppingItem: it})
	}
	return out
}

func journalRows(posts []model.JournalPost, r roster.Roster) []JournalPost {
	rows := view.Journal(posts, r)
	out := make([]JournalPost, 0, len(rows))
	for _, row := range rows {
		out = append(out, JournalPost{ID: row.Post.ID, JournalPost: row.Post, Avatar: row.Avatar})
	}
	return out
}

func memberRows(members []model.Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range roster.New(members).Members() {
		out = append(out, Member{DocID: m.ID, Member: m})
	}
	return out
}

func statusRows(st map[string]bool) []CollectionStatus {
	out := make([]CollectionStatus, 0, len(st))
	for c, ok := range st {
		out = append(out, CollectionStatus{Collection: c, Ready: ok})
	}
	slices.SortFunc(out, func(a, b CollectionStatus) int { return strings.Compare(a.Collection, b.Collection) })
	return out
}
