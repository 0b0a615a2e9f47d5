// Package db keeps tasks, recipient bindings and the notification ledger.
// Memory is the volatile store, Postgres is the durable one; both satisfy
// Store.
package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidTask  = errors.New("invalid task")
	ErrInvalidDue   = errors.New("due time requires due date")
)

// TaskStore is the CRUD layer the scheduler reads from. ListTasks returns
// copies in creation order.
type TaskStore interface {
	ListUsers(ctx context.Context) ([]int64, error)
	ListTasks(ctx context.Context, usr int64) ([]Task, error)
	AddTask(ctx context.Context, t Task) (Task, error)
	// TakeTask moves the task to work and sets its due fields, which may be
	// empty. Taking a task again replaces the due fields.
	TakeTask(ctx context.Context, usr int64, id, dueDate, dueTime string) (Task, error)
	// RemoveTask removes a completed or deleted task.
	RemoveTask(ctx context.Context, usr int64, id string) error
}

// RecipientDirectory maps users to the chats notifications are delivered to.
type RecipientDirectory interface {
	// ResolveRecipient returns false if the user has never registered.
	ResolveRecipient(ctx context.Context, usr int64) (int64, bool, error)
	// BindRecipient sets or overwrites the user's chat.
	BindRecipient(ctx context.Context, usr, chat int64) error
}

// Ledger remembers which notifications were already sent.
type Ledger interface {
	// MarkIfAbsent atomically records key and reports whether it was absent.
	// at is the instant of the event the key stands for; it drives eviction.
	MarkIfAbsent(ctx context.Context, key string, at time.Time) (bool, error)
	// Prune forgets keys whose events happened before the given instant.
	Prune(ctx context.Context, before time.Time) (int, error)
}

type Store interface {
	TaskStore
	RecipientDirectory
}

func validateNew(t *Task) error {
	if t.UserID == 0 || t.Text == "" {
		return errors.Wrap(ErrInvalidTask, "user and text are required")
	}
	if t.Difficulty < DifficultyMin || t.Difficulty > DifficultyMax {
		return errors.Wrapf(ErrInvalidTask, "difficulty %d is out of range", t.Difficulty)
	}
	if t.Importance < ImportanceMin || t.Importance > ImportanceMax {
		return errors.Wrapf(ErrInvalidTask, "importance %d is out of range", t.Importance)
	}
	return nil
}

func validateDue(dueDate, dueTime string) error {
	if dueDate == "" && dueTime != "" {
		return ErrInvalidDue
	}
	return nil
}
