package model

import (
	"encoding/json"
	"fmt"
	"time"

	"tripsync/db/db"
)

// entity is a decodable record whose store id lives outside its fields.
type entity[T any] interface {
	*T
	setID(id string)
}

type validator interface {
	validate() error
}

// Decode converts a store document into T. Field values the store keeps as
// time.Time are carried through as RFC 3339 strings.
func Decode[T any, PT entity[T]](doc db.Document) (T, error) {
	var out T
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return out, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	PT(&out).setID(doc.ID)
	if v, ok := any(PT(&out)).(validator); ok {
		if err := v.validate(); err != nil {
			return out, fmt.Errorf("document %s: %w", doc.ID, err)
		}
	}
	return out, nil
}

func DecodeTodo(doc db.Document) (TodoItem, error) { return Decode[TodoItem](doc) }
func DecodeShopping(doc db.Document) (ShoppingItem, error) {
	return Decode[ShoppingItem](doc)
}
func DecodeJournal(doc db.Document) (JournalPost, error) { return Decode[JournalPost](doc) }
func DecodeMember(doc db.Document) (Member, error)       { return Decode[Member](doc) }
func DecodeItinerary(doc db.Document) (ItineraryDay, error) {
	return Decode[ItineraryDay](doc)
}

// ToFields encodes v as store fields. The store id is never part of the result.
func ToFields(v any) (db.Fields, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out db.Fields
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewMemberID returns the id stamped on a member added at t.
func NewMemberID(t time.Time) string {
	return fmt.Sprintf("m%d", t.UnixMilli())
}
