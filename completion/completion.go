// Package completion tracks which members have completed a shared item and
// derives the progress figures shown for todos, packing and shopping.
package completion

import (
	"math"
	"slices"

	"tripsync/db/db"
	"tripsync/model"
	"tripsync/roster"
)

// Percent returns round(100*done/total), half away from zero, or 0 when
// total is zero.
func Percent(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done > total {
		done = total
	}
	return int(math.Floor(100*float64(done)/float64(total) + 0.5))
}

// EffectiveAssignees expands the all-members sentinel against the current
// roster. The expansion happens on every read and is never stored.
func EffectiveAssignees(todo model.TodoItem, r roster.Roster) []string {
	if todo.AssignedToAll() {
		return dedupe(r.Names())
	}
	return dedupe(todo.Assignees)
}

// TodoProgress is the completion state of one todo against its target set.
type TodoProgress struct {
	Percent int      `json:"percent"`
	Target  []string `json:"target"`
	Done    []string `json:"done"`
	Pending []string `json:"pending"`
}

// Complete reports whether every target member is done. An empty target
// set is never complete.
func (p TodoProgress) Complete() bool {
	return len(p.Target) > 0 && len(p.Pending) == 0
}

// ForTodo computes done and pending members. Names in completedBy that are
// no longer targeted, such as removed members, are not counted.
func ForTodo(todo model.TodoItem, r roster.Roster) TodoProgress {
	target := EffectiveAssignees(todo, r)
	p := TodoProgress{Target: target, Done: []string{}, Pending: []string{}}
	for _, name := range target {
		if slices.Contains(todo.CompletedBy, name) {
			p.Done = append(p.Done, name)
		} else {
			p.Pending = append(p.Pending, name)
		}
	}
	p.Percent = Percent(len(p.Done), len(target))
	return p
}

// IsDoneBy reports whether name is in the todo's completedBy set.
func IsDoneBy(todo model.TodoItem, name string) bool {
	return slices.Contains(todo.CompletedBy, name)
}

// ToggleFields flips name in completedBy with a set operator, so toggles
// by different members commute under concurrent writes.
func ToggleFields(todo model.TodoItem, name string) db.Fields {
	if IsDoneBy(todo, name) {
		return db.Fields{model.FieldCompletedBy: db.ArrayRemove(name)}
	}
	return db.Fields{model.FieldCompletedBy: db.ArrayUnion(name)}
}

// AssignFields adds or removes name from the todo's assignees.
func AssignFields(name string, assign bool) db.Fields {
	if assign {
		return db.Fields{model.FieldAssignees: db.ArrayUnion(name)}
	}
	return db.Fields{model.FieldAssignees: db.ArrayRemove(name)}
}

// IsAssigned reports whether name is listed, directly or via the sentinel.
func IsAssigned(todo model.TodoItem, name string) bool {
	return todo.AssignedToAll() || slices.Contains(todo.Assignees, name)
}

// RemovesLastAssignee reports whether unassigning name would leave the
// todo without any assignee.
func RemovesLastAssignee(todo model.TodoItem, name string) bool {
	return len(todo.Assignees) == 1 && todo.Assignees[0] == name
}

// PackingProgress counts checked entries of the current members only.
func PackingProgress(item model.PackingItem, r roster.Roster) int {
	keys := r.Keys()
	done := 0
	for _, k := range keys {
		if item.CheckMap[k] {
			done++
		}
	}
	return Percent(done, len(keys))
}

// PackingCompleted is the completion used for filtering and sort. For the
// aggregate view (member == model.LegacyAllAssignees or "") every member
// must have checked the item.
func PackingCompleted(item model.PackingItem, r roster.Roster, member string) bool {
	if member == "" || model.IsAllSentinel(member) {
		return r.Len() > 0 && PackingProgress(item, r) == 100
	}
	return item.CheckMap[member]
}

// BuyerFields sets the buyer of a shopping item. completed and completedBy
// always travel in the same write; an empty buyer clears both.
func BuyerFields(buyer string) db.Fields {
	if buyer == "" {
		return db.Fields{model.FieldCompleted: false, model.FieldCompletedBy: nil}
	}
	return db.Fields{model.FieldCompleted: true, model.FieldCompletedBy: buyer}
}

// ShoppingConsistent reports whether completed agrees with completedBy.
func ShoppingConsistent(item model.ShoppingItem) bool {
	return item.Completed == (item.CompletedBy != nil && *item.CompletedBy != "")
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
