// Package teachers owns the single active teacher credential and the
// registration workflow that produces it.
package teachers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lesson-library/internal/logx"
	"lesson-library/internal/model"
	"lesson-library/internal/store"
)

// Credentials wraps the store's teacher singleton.
type Credentials struct {
	store store.Store
}

func NewCredentials(s store.Store) *Credentials {
	return &Credentials{store: s}
}

// Active returns the current teacher. Read failures are logged and reported
// as no teacher configured.
func (c *Credentials) Active(ctx context.Context) (*model.TeacherCredential, bool) {
	cred, err := c.store.ActiveTeacher(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logx.Warn("teacher credential read failed", logx.Fields{"error": err.Error()})
		}
		return nil, false
	}
	return cred, true
}

// SetActive replaces whatever teacher is active.
func (c *Credentials) SetActive(ctx context.Context, username, passwordHash string) error {
	err := c.store.SetActiveTeacher(ctx, model.TeacherCredential{
		Username:     username,
		PasswordHash: passwordHash,
		ApprovedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save teacher credential: %w", err)
	}
	return nil
}

// DeleteActive removes the teacher. Deleting when none exists is a no-op.
func (c *Credentials) DeleteActive(ctx context.Context) error {
	err := c.store.DeleteActiveTeacher(ctx)
	if errors.Is(err, store.ErrNotFound) {
		logx.Info("delete teacher: none active", nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete teacher credential: %w", err)
	}
	return nil
}
