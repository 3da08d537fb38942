// Package prompt asks the user to confirm destructive operations.
package prompt

import (
	"context"
	"errors"
)

var ErrCancelled = errors.New("operation cancelled")

// Confirmer answers a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Func adapts a function to a Confirmer.
type Func func(ctx context.Context, question string) (bool, error)

func (f Func) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// Always approves every question.
var Always Confirmer = Func(func(context.Context, string) (bool, error) { return true, nil })

// Never declines every question.
var Never Confirmer = Func(func(context.Context, string) (bool, error) { return false, nil })

// Require returns nil when c approves, ErrCancelled when it declines, or the
// confirmer's own error. A nil Confirmer declines.
func Require(ctx context.Context, c Confirmer, question string) error {
	if c == nil {
		return ErrCancelled
	}
	ok, err := c.Confirm(ctx, question)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}

// Questions asked before destructive writes.
const (
	DeleteTodo         = "確定要刪除這項待辦任務嗎？"
	RemoveLastAssignee = "這是最後一位負責人，確定要移除嗎？"
	DeleteMember       = "確定移除？"
	DeletePackingItem  = "確定要刪除此項嗎？"
)
