package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"tripsync/db/db"
	"tripsync/model"
	"tripsync/planner"
	"tripsync/prompt"
)

// Resolver serves the schema from the planner's mirrors. Subscriptions read
// snapshots straight from Store.
type Resolver struct {
	Planner *planner.Planner
	Store   db.Subscriber
}

// fieldFunc resolves one root field from its coerced arguments.
type fieldFunc func(ctx context.Context, args map[string]any) (any, error)

func (r *Resolver) queryFields() map[string]fieldFunc {
	p := r.Planner
	return map[string]fieldFunc{
		"status": func(context.Context, map[string]any) (any, error) {
			return statusRows(p.Status()), nil
		},
		"itinerary": func(context.Context, map[string]any) (any, error) {
			return itineraryRows(p.Itinerary.Current()), nil
		},
		"todos": func(_ context.Context, args map[string]any) (any, error) {
			return todoRows(p.Todos.Current(), p.Roster(), argString(args, "assignee")), nil
		},
		"shopping": func(_ context.Context, args map[string]any) (any, error) {
			return shoppingRows(p.Shopping.Current(), argString(args, "tag"), argString(args, "category")), nil
		},
		"journal": func(context.Context, map[string]any) (any, error) {
			return journalRows(p.Journal.Current(), p.Roster()), nil
		},
		"members": func(context.Context, map[string]any) (any, error) {
			return memberRows(p.Members.Current()), nil
		},
	}
}

func confirmArg(args map[string]any) prompt.Confirmer {
	if argBool(args, "confirm") {
		return prompt.Always
	}
	return prompt.Never
}

func (r *Resolver) mutationFields() map[string]fieldFunc {
	p := r.Planner
	return map[string]fieldFunc{
		"addTodo": func(ctx context.Context, args map[string]any) (any, error) {
			return p.AddTodo(ctx, argString(args, "text"), argStrings(args, "assignees"))
		},
		"editTodo": func(ctx context.Context, args map[string]any) (any, error) {
			return done(p.EditTodo(ctx, argString(args, "id"), argString(args, "text")))
		},
		"toggleTodo": func(ctx context.Context, args map[string]any) (any, error) {
			return done(p.ToggleTodo(ctx, argString(args, "id"), argString(args, "member")))
		},
		"assignTodo": func(ctx context.Context, args map[string]any) (any, error) {
			return done(p.AssignTodo(ctx, argString(args, "id"), argString(args, "member"), argBool(args, "assign"), confirmArg(args)))
		},
		"deleteTodo": func(ctx context.Context, args map[string]any) (any, error) {
			return done(p.DeleteTodo(ctx, argString(args, "id"), confirmArg(args)))
		},
		"addShopping": func(ctx context.Context, args map[string]any) (any, error) {
			var in planner.ShoppingInput
			if err := argObject(args, "input", &in); err != nil {
				return nil, err
			}
			return p.AddShopping(ctx, in)
		},
		"editShopping": func(ctx context.Context, args map[string]any) (any, error) {
			return done(p.EditShopping(ctx, argString(args, "id"), argString(args, "title"), argStrings(args, "subItems")))
		},
		"setBuyer": func(ctx context.Context, args map[string]any) (any, error) {
			return done(p.SetBuyer(ctx, argString(args, "id"), argString(args, "buyer")))
		},
		"deleteShopping": func(ctx context.Context, args map[string]any) (any, error) {
			return done(p.DeleteShopping(ctx, argString(args, "id")))
		},
		"addMember": func(ctx context.Context, args map[string]any) (any, error) {
			return p.AddMember(ctx, argString(args, "name"), argString(args, "avatar"))
		},
		"deleteMember": func(ctx context.Context, args map[string]any) (any, error) {
			return done(p.DeleteMember(ctx, argString(args, "id"), confirmArg(args)))
		},
	}
}

// feed is a subscribable collection: its live query and how one snapshot
// becomes the field value.
type feed struct {
	query db.Query
	rows  func(docs []db.Document, args map[string]any) any
}

func (r *Resolver) subscriptionFeeds() map[string]feed {
	p := r.Planner
	return map[string]feed{
		"itinerary": {planner.ItineraryQuery, func(docs []db.Document, _ map[string]any) any {
			return itineraryRows(decodeAll(docs, model.DecodeItinerary))
		}},
		"todos": {planner.TodosQuery, func(docs []db.Document, args map[string]any) any {
			return todoRows(decodeAll(docs, model.DecodeTodo), p.Roster(), argString(args, "assignee"))
		}},
		"shopping": {planner.ShoppingQuery, func(docs []db.Document, args map[string]any) any {
			return shoppingRows(decodeAll(docs, model.DecodeShopping), argString(args, "tag"), argString(args, "category"))
		}},
		"journal": {planner.JournalQuery, func(docs []db.Document, _ map[string]any) any {
			return journalRows(decodeAll(docs, model.DecodeJournal), p.Roster())
		}},
		"members": {planner.MembersQuery, func(docs []db.Document, _ map[string]any) any {
			return memberRows(decodeAll(docs, model.DecodeMember))
		}},
	}
}

// decodeAll skips malformed documents, as the mirrors do.
func decodeAll[T any](docs []db.Document, decode func(db.Document) (T, error)) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		if v, err := decode(d); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func done(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return true, nil
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func argStrings(args map[string]any, key string) []string {
	raw, _ := args[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// argObject decodes an input object argument into dst through its JSON tags.
func argObject(args map[string]any, key string, dst any) error {
	body, err := json.Marshal(args[key])
	if err != nil {
		return fmt.Errorf("argument %s: %w", key, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("argument %s: %w", key, err)
	}
	return nil
}
