package db

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an update or delete targets a missing document.
	ErrNotFound = errors.New("document not found")
	// ErrUnavailable is returned when the store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrInvalidQuery is returned for a malformed subscription query.
	ErrInvalidQuery = errors.New("invalid query")
)

// WriteError reports a failed create, set, update or delete.
type WriteError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *WriteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WrapWrite returns err wrapped in a WriteError, or nil.
func WrapWrite(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Op: op, Collection: collection, ID: id, Err: err}
}

// SubscriptionError reports a listener failure for a collection.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
