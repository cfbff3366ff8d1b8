// Package store defines the persistence contract shared by the JSON file and
// PostgreSQL backends.
package store

import (
	"context"
	"errors"

	"lesson-library/internal/model"
)

var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	// ErrStale is returned when a positional operation no longer points at
	// the record the caller expected.
	ErrStale = errors.New("stale")
)

// Store persists the teacher credential, the pending registration queue and
// the lesson catalog. Every mutating call is atomic with respect to other
// calls on the same Store.
type Store interface {
	Ping(ctx context.Context) error

	// ActiveTeacher returns ErrNotFound when no teacher is configured.
	ActiveTeacher(ctx context.Context) (*model.TeacherCredential, error)
	SetActiveTeacher(ctx context.Context, c model.TeacherCredential) error
	DeleteActiveTeacher(ctx context.Context) error

	// ListPending returns requests in arrival order.
	ListPending(ctx context.Context) ([]model.PendingRequest, error)
	// AddPending returns ErrConflict if the username is already queued.
	AddPending(ctx context.Context, p model.PendingRequest) error
	// PromotePending removes the request at index and makes it the active
	// teacher. ErrNotFound means the index is out of range; ErrStale means
	// expectUsername was set and did not match.
	PromotePending(ctx context.Context, index int, expectUsername string) (*model.TeacherCredential, error)

	// ListLessons returns lessons ordered by id.
	ListLessons(ctx context.Context) ([]model.Lesson, error)
	GetLesson(ctx context.Context, id int) (*model.Lesson, error)
	// AddLesson assigns the id and returns the stored record.
	AddLesson(ctx context.Context, l model.Lesson) (model.Lesson, error)
	IncrementDownloads(ctx context.Context, filename string) error
	DeleteLesson(ctx context.Context, id int) (model.Lesson, error)

	Close() error
}
