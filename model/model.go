// Package model holds the trip entities and their document encoding.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Assignee sentinels of a todo. Both expand to every current member at read time.
const (
	AllAssignees       = "ALL"
	LegacyAllAssignees = "全體"
)

// Field names shared by writers and decoders.
const (
	FieldText        = "text"
	FieldAssignees   = "assignees"
	FieldCompletedBy = "completedBy"
	FieldCompleted   = "completed"
	FieldCreatedAt   = "createdAt"
	FieldTitle       = "title"
	FieldQuantity    = "quantity"
	FieldImage       = "image"
	FieldNote        = "note"
	FieldCategory    = "category"
	FieldSubItems    = "subItems"
	FieldAuthor      = "author"
	FieldAvatar      = "avatar"
	FieldContent     = "content"
	FieldImages      = "images"
	FieldLikes       = "likes"
	FieldName        = "name"
	FieldRole        = "role"
	FieldJoinedAt    = "joinedAt"
	FieldMemberID    = "id"
	FieldDate        = "date"
)

// Defaults written by the planner.
const (
	DefaultShoppingCategory = "未分類"
	UnknownAuthor           = "未知成員"
	DefaultMemberRole       = "成員"
)

// IsAllSentinel reports whether an assignee entry means every member.
func IsAllSentinel(name string) bool {
	return name == AllAssignees || name == LegacyAllAssignees
}

// FlexibleID decodes a JSON string or number; seeded member ids are numbers.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("member id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = FlexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = FlexibleID(n.String())
	return nil
}

type Weather struct {
	Icon string `json:"icon,omitempty" yaml:"icon"`
	Temp string `json:"temp,omitempty" yaml:"temp"`
	Wear string `json:"wear,omitempty" yaml:"wear"`
}

type Activity struct {
	Time    string `json:"time" yaml:"time"`
	Title   string `json:"title" yaml:"title"`
	Note    string `json:"note" yaml:"note"`
	Details string `json:"details,omitempty" yaml:"details,omitempty"`
	Map     string `json:"map,omitempty" yaml:"map,omitempty"`
}

type Group struct {
	Name       string     `json:"name" yaml:"name"`
	Activities []Activity `json:"activities" yaml:"activities"`
}

// ItineraryDay is one day of the schedule. A day carries either groups or a
// flat activity list, never both.
type ItineraryDay struct {
	ID         string     `json:"-" yaml:"-"`
	Date       string     `json:"date" yaml:"date"`
	Weather    Weather    `json:"weather" yaml:"weather"`
	Groups     []Group    `json:"groups,omitempty" yaml:"groups,omitempty"`
	Activities []Activity `json:"activities,omitempty" yaml:"activities,omitempty"`
}

func (d *ItineraryDay) setID(id string) { d.ID = id }

func (d *ItineraryDay) validate() error {
	if len(d.Groups) > 0 && len(d.Activities) > 0 {
		return fmt.Errorf("itinerary day %s has both groups and activities", d.Date)
	}
	return nil
}

type TodoItem struct {
	ID          string     `json:"-"`
	Text        string     `json:"text"`
	Assignees   []string   `json:"assignees"`
	CompletedBy []string   `json:"completedBy"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

func (t *TodoItem) setID(id string) { t.ID = id }

// AssignedToAll reports whether the todo targets the whole roster.
func (t TodoItem) AssignedToAll() bool {
	for _, a := range t.Assignees {
		if IsAllSentinel(a) {
			return true
		}
	}
	return false
}

type ShoppingItem struct {
	ID          string     `json:"-"`
	Title       string     `json:"title"`
	Quantity    int        `json:"quantity"`
	Image       string     `json:"image,omitempty"`
	Note        string     `json:"note,omitempty"`
	Category    string     `json:"category"`
	SubItems    []string   `json:"subItems"`
	Completed   bool       `json:"completed"`
	CompletedBy *string    `json:"completedBy"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

func (s *ShoppingItem) setID(id string) { s.ID = id }

// CategoryOrDefault returns the item category, or the default tag when unset.
func (s ShoppingItem) CategoryOrDefault() string {
	if s.Category == "" {
		return DefaultShoppingCategory
	}
	return s.Category
}

type JournalPost struct {
	ID        string     `json:"-"`
	Author    string     `json:"author"`
	Avatar    string     `json:"avatar"`
	Content   string     `json:"content"`
	Images    []string   `json:"images"`
	Likes     int        `json:"likes"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (p *JournalPost) setID(id string) { p.ID = id }

// Member is a trip participant. Other entities refer to members by Name.
type Member struct {
	ID       string     `json:"-" yaml:"-"`
	MemberID FlexibleID `json:"id,omitempty" yaml:"id"`
	Name     string     `json:"name" yaml:"name"`
	Avatar   string     `json:"avatar" yaml:"avatar"`
	Role     string     `json:"role,omitempty" yaml:"role"`
	JoinedAt string     `json:"joinedAt,omitempty" yaml:"joinedAt,omitempty"`
}

func (m *Member) setID(id string) { m.ID = id }

// Key identifies the member in packing check maps: the member's own id
// field when present, else the store id.
func (m Member) Key() string {
	if m.MemberID != "" {
		return string(m.MemberID)
	}
	return m.ID
}

// PackingItem is a local-only checklist entry; CheckMap is keyed by Member.Key.
type PackingItem struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Note     string          `json:"note"`
	Category string          `json:"category"`
	CheckMap map[string]bool `json:"checkMap"`
	Image    *string         `json:"image"`
}

// Clone returns a deep copy of the item.
func (p PackingItem) Clone() PackingItem {
	cp := p
	cp.CheckMap = make(map[string]bool, len(p.CheckMap))
	for k, v := range p.CheckMap {
		cp.CheckMap[k] = v
	}
	if p.Image != nil {
		img := *p.Image
		cp.Image = &img
	}
	return cp
}

// BookingGroup is a room assignment of a stay or a leg of a transport pass.
type BookingGroup struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Ref     string `json:"ref,omitempty" yaml:"ref,omitempty"`
	Members string `json:"members,omitempty" yaml:"members,omitempty"`
	Date    string `json:"date,omitempty" yaml:"date,omitempty"`
	TrainNo string `json:"trainNo,omitempty" yaml:"trainNo,omitempty"`
	Time    string `json:"time,omitempty" yaml:"time,omitempty"`
	Remark  string `json:"remark,omitempty" yaml:"remark,omitempty"`
}

// Booking is static configuration. Category is a free-text tag naming the
// type (機票, 住宿, 交通) and, for flights, an MM/DD date.
type Booking struct {
	Category      string         `json:"category" yaml:"category"`
	Title         string         `json:"title" yaml:"title"`
	FlightNo      string         `json:"flightNo,omitempty" yaml:"flightNo,omitempty"`
	Time          string         `json:"time,omitempty" yaml:"time,omitempty"`
	Details       string         `json:"details,omitempty" yaml:"details,omitempty"`
	TerminalTPE   string         `json:"terminalTPE,omitempty" yaml:"terminalTPE,omitempty"`
	TerminalNRT   string         `json:"terminalNRT,omitempty" yaml:"terminalNRT,omitempty"`
	Baggage       string         `json:"baggage,omitempty" yaml:"baggage,omitempty"`
	Aircraft      string         `json:"aircraft,omitempty" yaml:"aircraft,omitempty"`
	Note          string         `json:"note,omitempty" yaml:"note,omitempty"`
	Image         string         `json:"image,omitempty" yaml:"image,omitempty"`
	Address       string         `json:"address,omitempty" yaml:"address,omitempty"`
	CheckIn       string         `json:"checkIn,omitempty" yaml:"checkIn,omitempty"`
	CheckOut      string         `json:"checkOut,omitempty" yaml:"checkOut,omitempty"`
	DirectionInfo string         `json:"directionInfo,omitempty" yaml:"directionInfo,omitempty"`
	ExchangeInfo  string         `json:"exchangeInfo,omitempty" yaml:"exchangeInfo,omitempty"`
	ImportantNote string         `json:"importantNote,omitempty" yaml:"importantNote,omitempty"`
	Groups        []BookingGroup `json:"groups,omitempty" yaml:"groups,omitempty"`
}
