package db

import (
	"fmt"
)

// Fields is the field set of a document, keyed by field name.
// Values are scalars, slices of scalars, time.Time, nested maps, or one of
// the field operators below (only meaningful in Create/Set/Update input).
type Fields map[string]any

// Document is one record of a collection as delivered by the store.
type Document struct {
	ID     string
	Fields Fields
}

// Direction is the ordering direction of a query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Query selects a whole collection, optionally ordered by one field.
// An empty OrderBy leaves documents in store-internal order.
type Query struct {
	Collection string
	OrderBy    string
	Direction  Direction
}

// Validate reports whether the query can be served.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection name", ErrInvalidQuery)
	}
	if q.Direction != Asc && q.Direction != Desc {
		return fmt.Errorf("%w: unknown direction %d", ErrInvalidQuery, q.Direction)
	}
	return nil
}

// Snapshot is the complete ordered record set of a collection at a point in time.
// Err is set instead of Docs when the listener itself failed.
type Snapshot struct {
	Collection string
	Docs       []Document
	Err        error
}

// ArrayUnionOp adds each value to a set-valued field if not already present.
type ArrayUnionOp struct {
	Values []any
}

// ArrayRemoveOp removes every occurrence of each value from a set-valued field.
type ArrayRemoveOp struct {
	Values []any
}

// ServerTimestampOp is replaced by the store's clock at write time.
type ServerTimestampOp struct{}

// ArrayUnion returns a set-union-add operator for Update.
func ArrayUnion(values ...any) ArrayUnionOp {
	return ArrayUnionOp{Values: values}
}

// ArrayRemove returns a set-union-remove operator for Update.
func ArrayRemove(values ...any) ArrayRemoveOp {
	return ArrayRemoveOp{Values: values}
}

// ServerTimestamp requests a store-assigned timestamp for the field.
func ServerTimestamp() ServerTimestampOp {
	return ServerTimestampOp{}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return Document{ID: d.ID, Fields: cloneFields(d.Fields)}
}

func cloneFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	case []string:
		cp := make([]string, len(t))
		copy(cp, t)
		return cp
	case map[string]any:
		return map[string]any(cloneFields(Fields(t)))
	case Fields:
		return cloneFields(t)
	case map[string]bool:
		cp := make(map[string]bool, len(t))
		for k, b := range t {
			cp[k] = b
		}
		return cp
	default:
		return v
	}
}
