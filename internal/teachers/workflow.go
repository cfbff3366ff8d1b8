package teachers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"lesson-library/internal/logx"
	"lesson-library/internal/model"
	"lesson-library/internal/store"
)

const MinPasswordLength = 6

var (
	ErrTeacherActive    = errors.New("a teacher is already active, log in instead")
	ErrMissingFields    = errors.New("username and password are required")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrStaleIndex       = errors.New("pending list changed, reload and try again")
)

// Outcome is the result of a successful submission.
type Outcome int

const (
	OutcomeSubmitted Outcome = iota + 1
	OutcomeAlreadyPending
)

// Notifier is told about each new pending request.
type Notifier interface {
	NotifyPendingRequest(ctx context.Context, username string) error
}

// Workflow takes a registration from submission through admin approval.
type Workflow struct {
	store    store.Store
	creds    *Credentials
	notifier Notifier
}

// NewWorkflow builds a workflow. notifier may be nil.
func NewWorkflow(s store.Store, creds *Credentials, notifier Notifier) *Workflow {
	return &Workflow{store: s, creds: creds, notifier: notifier}
}

// Submit queues a registration request. Checks run in order and the first
// failure wins; validation failures change nothing.
func (w *Workflow) Submit(ctx context.Context, username, password, confirm string) (Outcome, error) {
	if _, ok := w.creds.Active(ctx); ok {
		return 0, ErrTeacherActive
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, ErrMissingFields
	}
	if password != confirm {
		return 0, ErrPasswordMismatch
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return 0, ErrPasswordTooShort
	}

	pending, err := w.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending requests: %w", err)
	}
	for _, p := range pending {
		if p.Username == username {
			return OutcomeAlreadyPending, nil
		}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	err = w.store.AddPending(ctx, model.PendingRequest{
		Username:     username,
		PasswordHash: hash,
		SubmittedAt:  time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with an identical submission.
		return OutcomeAlreadyPending, nil
	}
	if err != nil {
		return 0, fmt.Errorf("save pending request: %w", err)
	}

	logx.Info("registration submitted", logx.Fields{"username": username})
	if w.notifier != nil {
		if err := w.notifier.NotifyPendingRequest(ctx, username); err != nil {
			logx.Warn("registration notice failed", logx.Fields{"username": username, "error": err.Error()})
		}
	}
	return OutcomeSubmitted, nil
}

// Pending lists queued requests oldest first. Read failures yield an empty list.
func (w *Workflow) Pending(ctx context.Context) []model.PendingRequest {
	pending, err := w.store.ListPending(ctx)
	if err != nil {
		logx.Warn("pending requests read failed", logx.Fields{"error": err.Error()})
		return nil
	}
	return pending
}

// Approve promotes pending[index] to active teacher. An out-of-range index
// is a no-op and returns nil, nil. If expectUsername is set and pending[index]
// is someone else, ErrStaleIndex is returned and nothing changes.
func (w *Workflow) Approve(ctx context.Context, index int, expectUsername string) (*model.TeacherCredential, error) {
	cred, err := w.store.PromotePending(ctx, index, strings.TrimSpace(expectUsername))
	switch {
	case errors.Is(err, store.ErrNotFound):
		logx.Info("approve: index out of range", logx.Fields{"index": index})
		return nil, nil
	case errors.Is(err, store.ErrStale):
		return nil, ErrStaleIndex
	case err != nil:
		return nil, fmt.Errorf("approve pending request: %w", err)
	}
	logx.Info("teacher approved", logx.Fields{"username": cred.Username})
	return cred, nil
}

func (w *Workflow) DeleteTeacher(ctx context.Context) error {
	return w.creds.DeleteActive(ctx)
}

// Authenticate succeeds only for the active teacher's exact username and
// password. Every failure takes the same path.
func (w *Workflow) Authenticate(ctx context.Context, username, password string) bool {
	cred, ok := w.creds.Active(ctx)
	if !ok {
		burnCompare(password)
		return false
	}
	passOK := VerifyPassword(password, cred.PasswordHash)
	return passOK && cred.Username == username
}
