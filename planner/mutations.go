package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tripsync/completion"
	"tripsync/db/db"
	"tripsync/model"
	"tripsync/packing"
	"tripsync/prompt"
	"tripsync/roster"
	"tripsync/tripdata"
	"tripsync/upload"
)

func required(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrValidation, field)
	}
	return v, nil
}

func stringsToAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

// --- todos ---

// AddTodo creates a todo. Without assignees it targets every member.
func (p *Planner) AddTodo(ctx context.Context, text string, assignees []string) (string, error) {
	text, err := required("text", text)
	if err != nil {
		return "", err
	}
	if len(assignees) == 0 {
		assignees = []string{model.AllAssignees}
	}
	id, err := p.store.Create(ctx, db.CollectionTodos, db.Fields{
		model.FieldText:        text,
		model.FieldAssignees:   stringsToAny(assignees),
		model.FieldCompletedBy: []any{},
		model.FieldCreatedAt:   db.ServerTimestamp(),
	})
	return id, p.logWrite(err, "create", db.CollectionTodos, "")
}

func (p *Planner) findTodo(id string) (model.TodoItem, error) {
	for _, t := range p.Todos.Current() {
		if t.ID == id {
			return t, nil
		}
	}
	return model.TodoItem{}, fmt.Errorf("todo %s: %w", id, db.ErrNotFound)
}

// ToggleTodo flips member's completion based on the mirrored todo.
func (p *Planner) ToggleTodo(ctx context.Context, id, member string) error {
	member, err := required("member", member)
	if err != nil {
		return err
	}
	todo, err := p.findTodo(id)
	if err != nil {
		return err
	}
	return p.logWrite(p.store.Update(ctx, db.CollectionTodos, id, completion.ToggleFields(todo, member)), "update", db.CollectionTodos, id)
}

func (p *Planner) EditTodo(ctx context.Context, id, text string) error {
	text, err := required("text", text)
	if err != nil {
		return err
	}
	return p.logWrite(p.store.Update(ctx, db.CollectionTodos, id, db.Fields{model.FieldText: text}), "update", db.CollectionTodos, id)
}

// AssignTodo adds or removes member from the todo's assignees. Removing the
// last assignee needs confirmation.
func (p *Planner) AssignTodo(ctx context.Context, id, member string, assign bool, c prompt.Confirmer) error {
	member, err := required("member", member)
	if err != nil {
		return err
	}
	if !assign {
		todo, err := p.findTodo(id)
		if err != nil {
			return err
		}
		if completion.RemovesLastAssignee(todo, member) {
			if err := prompt.Require(ctx, c, prompt.RemoveLastAssignee); err != nil {
				return err
			}
		}
	}
	return p.logWrite(p.store.Update(ctx, db.CollectionTodos, id, completion.AssignFields(member, assign)), "update", db.CollectionTodos, id)
}

func (p *Planner) DeleteTodo(ctx context.Context, id string, c prompt.Confirmer) error {
	if err := prompt.Require(ctx, c, prompt.DeleteTodo); err != nil {
		return err
	}
	return p.logWrite(p.store.Delete(ctx, db.CollectionTodos, id), "delete", db.CollectionTodos, id)
}

// --- shopping ---

type ShoppingInput struct {
	Title    string   `json:"title"`
	Quantity int      `json:"quantity"`
	Image    string   `json:"image"`
	Note     string   `json:"note"`
	Category string   `json:"category"`
	SubItems []string `json:"subItems"`
}

func (p *Planner) AddShopping(ctx context.Context, in ShoppingInput) (string, error) {
	title, err := required("title", in.Title)
	if err != nil {
		return "", err
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}
	if in.Category == "" {
		in.Category = model.DefaultShoppingCategory
	}
	id, err := p.store.Create(ctx, db.CollectionShopping, db.Fields{
		model.FieldTitle:       title,
		model.FieldQuantity:    in.Quantity,
		model.FieldImage:       in.Image,
		model.FieldNote:        in.Note,
		model.FieldCategory:    in.Category,
		model.FieldSubItems:    stringsToAny(in.SubItems),
		model.FieldCompleted:   false,
		model.FieldCompletedBy: nil,
		model.FieldCreatedAt:   db.ServerTimestamp(),
	})
	return id, p.logWrite(err, "create", db.CollectionShopping, "")
}

// SetBuyer records who bought an item; an empty buyer marks it not bought.
func (p *Planner) SetBuyer(ctx context.Context, id, buyer string) error {
	buyer = strings.TrimSpace(buyer)
	return p.logWrite(p.store.Update(ctx, db.CollectionShopping, id, completion.BuyerFields(buyer)), "update", db.CollectionShopping, id)
}

func (p *Planner) EditShopping(ctx context.Context, id, title string, subItems []string) error {
	title, err := required("title", title)
	if err != nil {
		return err
	}
	return p.logWrite(p.store.Update(ctx, db.CollectionShopping, id, db.Fields{
		model.FieldTitle:    title,
		model.FieldSubItems: stringsToAny(subItems),
	}), "update", db.CollectionShopping, id)
}

func (p *Planner) DeleteShopping(ctx context.Context, id string) error {
	return p.logWrite(p.store.Delete(ctx, db.CollectionShopping, id), "delete", db.CollectionShopping, id)
}

// UploadImage stores one image and returns its URL.
func (p *Planner) UploadImage(ctx context.Context, f upload.File) (string, error) {
	if p.uploader == nil {
		return "", &upload.UploadError{Name: f.Name, Err: fmt.Errorf("no uploader configured")}
	}
	url, err := p.uploader.Upload(ctx, f)
	if err != nil {
		p.logger.Error("image upload failed", "name", f.Name, "error", err)
		return "", err
	}
	return url, nil
}

// --- journal ---

// PostResult is the outcome of AddPost. Failed lists images that were dropped.
type PostResult struct {
	ID     string
	Images []string
	Failed []error
}

// AddPost uploads images in parallel, drops the ones that failed and writes
// the post with the author's current avatar as a snapshot.
func (p *Planner) AddPost(ctx context.Context, author, content string, files []upload.File) (PostResult, error) {
	content, err := required("content", content)
	if err != nil {
		return PostResult{}, err
	}

	name, avatar := model.UnknownAuthor, ""
	if m, err := p.Roster().Resolve(author); err == nil {
		name, avatar = m.Name, m.Avatar
	}

	var res PostResult
	res.Images = []string{}
	if len(files) > 0 {
		if p.uploader == nil {
			for _, f := range files {
				res.Failed = append(res.Failed, &upload.UploadError{Name: f.Name, Err: fmt.Errorf("no uploader configured")})
			}
		} else {
			urls, failed := upload.UploadAll(ctx, p.uploader, files, p.logger)
			res.Images = append(res.Images, urls...)
			res.Failed = failed
		}
	}

	res.ID, err = p.store.Create(ctx, db.CollectionJournal, db.Fields{
		model.FieldAuthor:    name,
		model.FieldAvatar:    avatar,
		model.FieldContent:   content,
		model.FieldImages:    stringsToAny(res.Images),
		model.FieldLikes:     0,
		model.FieldCreatedAt: db.ServerTimestamp(),
	})
	if err != nil {
		return PostResult{}, p.logWrite(err, "create", db.CollectionJournal, "")
	}
	return res, nil
}

// --- members ---

// AddMember creates a member with a store-assigned id. An empty avatar gets
// the generated placeholder.
func (p *Planner) AddMember(ctx context.Context, name, avatar string) (string, error) {
	name, err := required("name", name)
	if err != nil {
		return "", err
	}
	if avatar == "" {
		avatar = roster.GeneratedAvatar(name)
	}
	now := p.clock.Now()
	id, err := p.store.Create(ctx, db.CollectionMembers, db.Fields{
		model.FieldMemberID: model.NewMemberID(now),
		model.FieldName:     name,
		model.FieldAvatar:   avatar,
		model.FieldRole:     model.DefaultMemberRole,
		model.FieldJoinedAt: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	return id, p.logWrite(err, "create", db.CollectionMembers, "")
}

// DeleteMember removes a member by store id. References by name in other
// collections are left as they are.
func (p *Planner) DeleteMember(ctx context.Context, id string, c prompt.Confirmer) error {
	if err := prompt.Require(ctx, c, prompt.DeleteMember); err != nil {
		return err
	}
	return p.logWrite(p.store.Delete(ctx, db.CollectionMembers, id), "delete", db.CollectionMembers, id)
}

// --- seeding ---

// Seed writes the static roster and itinerary with fixed ids: members by
// their own id, days by date. Re-seeding overwrites those documents.
func (p *Planner) Seed(ctx context.Context, trip *tripdata.Trip) error {
	for _, m := range trip.Members {
		if m.Role == "" {
			m.Role = model.DefaultMemberRole
		}
		fields, err := model.ToFields(m)
		if err != nil {
			return fmt.Errorf("encode member %s: %w", m.Name, err)
		}
		id := m.Key()
		if id == "" {
			id = model.NewMemberID(p.clock.Now())
			fields[model.FieldMemberID] = id
		}
		if err := p.store.Set(ctx, db.CollectionMembers, id, fields); err != nil {
			return p.logWrite(err, "set", db.CollectionMembers, id)
		}
	}
	for _, d := range trip.Itinerary {
		fields, err := model.ToFields(d)
		if err != nil {
			return fmt.Errorf("encode day %s: %w", d.Date, err)
		}
		if err := p.store.Set(ctx, db.CollectionItinerary, d.Date, fields); err != nil {
			return p.logWrite(err, "set", db.CollectionItinerary, d.Date)
		}
	}
	p.logger.Info("seeded trip data", "members", len(trip.Members), "days", len(trip.Itinerary))
	return nil
}

// --- packing ---

func (p *Planner) AddPackingItem(ctx context.Context, name, category string) (model.PackingItem, error) {
	item, err := p.packing.Add(ctx, name, category, p.Roster().Keys())
	if errors.Is(err, packing.ErrEmptyName) {
		return item, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return item, err
}

func (p *Planner) TogglePacking(ctx context.Context, id int64, memberKey string) error {
	memberKey, err := required("member", memberKey)
	if err != nil {
		return err
	}
	return p.packing.Toggle(ctx, id, memberKey)
}

func (p *Planner) DeletePackingItem(ctx context.Context, id int64, c prompt.Confirmer) error {
	return p.packing.Delete(ctx, id, c)
}

// AttachPackingImage stores an image inline as a data URI.
func (p *Planner) AttachPackingImage(ctx context.Context, id int64, dataURI string) error {
	if !strings.HasPrefix(dataURI, "data:") {
		return fmt.Errorf("%w: image must be a data URI", ErrValidation)
	}
	return p.packing.AttachImage(ctx, id, dataURI)
}
