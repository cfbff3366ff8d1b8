// Package session issues and checks the two independent roles a browser can
// hold: teacher and admin.
//
// Session data lives server-side in a gorilla/sessions FilesystemStore; the
// client only holds a signed, opaque session id.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"lesson-library/internal/logx"
	"lesson-library/internal/model"

	"github.com/gorilla/sessions"
)

const CookieName = "library_session"

const (
	keyTeacher = "teacher"
	keyAdmin   = "admin"
)

func init() {
	gob.Register(Flash{})
}

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// TeacherClaim is present on sessions that logged in as the teacher.
type TeacherClaim struct {
	Username string
}

// Session is the typed view of one browser's session.
type Session struct {
	Teacher *TeacherClaim
	Admin   bool

	raw *sessions.Session
}

// TeacherLookup reports the currently active teacher.
type TeacherLookup interface {
	Active(ctx context.Context) (*model.TeacherCredential, bool)
}

type Options struct {
	Dir           string
	Secret        string
	TTL           time.Duration
	AdminPassword string
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

type Authority struct {
	store       *sessions.FilesystemStore
	adminDigest [32]byte
	teachers    TeacherLookup
	dir         string
	ttl         time.Duration
}

func New(opts Options, teachers TeacherLookup) (*Authority, error) {
	if opts.Secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if opts.AdminPassword == "" {
		return nil, errors.New("admin password is empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	fs := sessions.NewFilesystemStore(opts.Dir, []byte(opts.Secret))
	fs.MaxAge(int(opts.TTL.Seconds()))
	fs.Options.Path = "/"
	fs.Options.HttpOnly = true
	fs.Options.SameSite = http.SameSiteLaxMode
	fs.Options.Secure = opts.Secure

	return &Authority{
		store:       fs,
		adminDigest: sha256.Sum256([]byte(opts.AdminPassword)),
		teachers:    teachers,
		dir:         opts.Dir,
		ttl:         opts.TTL,
	}, nil
}

type ctxKey struct{}

// Load returns the request's session. A missing, expired or tampered cookie
// yields a fresh empty session.
func (a *Authority) Load(r *http.Request) *Session {
	if s, ok := r.Context().Value(ctxKey{}).(*Session); ok {
		return s
	}
	raw, err := a.store.Get(r, CookieName)
	if err != nil {
		// Unreadable cookie or session file: start over under a new id.
		logx.Debug("session reset", logx.Fields{"error": err.Error()})
		raw.ID = ""
		raw.Values = make(map[interface{}]interface{})
		raw.IsNew = true
	}
	s := &Session{raw: raw}
	if name, ok := raw.Values[keyTeacher].(string); ok && name != "" {
		s.Teacher = &TeacherClaim{Username: name}
	}
	s.Admin, _ = raw.Values[keyAdmin].(bool)
	return s
}

// FromContext returns the session a guard attached to ctx, if any.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// Save persists the session and refreshes the cookie.
func (s *Session) Save(w http.ResponseWriter, r *http.Request) error {
	if s.Teacher != nil {
		s.raw.Values[keyTeacher] = s.Teacher.Username
	} else {
		delete(s.raw.Values, keyTeacher)
	}
	if s.Admin {
		s.raw.Values[keyAdmin] = true
	} else {
		delete(s.raw.Values, keyAdmin)
	}
	return s.raw.Save(r, w)
}

func (s *Session) AddFlash(kind, message string) {
	s.raw.AddFlash(Flash{Kind: kind, Message: message})
}

// Flashes returns and clears pending messages. Save must run afterwards for
// the clear to stick.
func (s *Session) Flashes() []Flash {
	var out []Flash
	for _, v := range s.raw.Flashes() {
		if f, ok := v.(Flash); ok {
			out = append(out, f)
		}
	}
	return out
}

// LoginTeacher sets the teacher claim only; an admin claim is left alone.
// Like LoginAdmin it issues a new session id on the next Save.
func (a *Authority) LoginTeacher(s *Session, username string) {
	s.Teacher = &TeacherClaim{Username: username}
	s.raw.ID = ""
}

func (a *Authority) LogoutTeacher(s *Session) {
	s.Teacher = nil
}

// LoginAdmin sets the admin claim only.
func (a *Authority) LoginAdmin(s *Session) {
	s.Admin = true
	s.raw.ID = ""
}

func (a *Authority) LogoutAdmin(s *Session) {
	s.Admin = false
}

// AdminPasswordOK compares password with the configured admin secret in
// constant time.
func (a *Authority) AdminPasswordOK(password string) bool {
	got := sha256.Sum256([]byte(password))
	return hmac.Equal(got[:], a.adminDigest[:])
}

func (a *Authority) save(w http.ResponseWriter, r *http.Request, s *Session) {
	if err := s.Save(w, r); err != nil {
		logx.Error("session save failed", nil, err)
	}
}

// RequireTeacher lets the request through only for the active teacher. A
// claim for a teacher who is no longer active is dropped.
func (a *Authority) RequireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := a.Load(r)
		if s.Teacher == nil {
			s.AddFlash("error", "Please log in as a teacher.")
			a.save(w, r, s)
			http.Redirect(w, r, "/teacher", http.StatusSeeOther)
			return
		}

		cred, ok := a.teachers.Active(r.Context())
		if !ok || cred.Username != s.Teacher.Username {
			logx.Info("teacher session revoked", logx.Fields{"username": s.Teacher.Username})
			a.LogoutTeacher(s)
			s.AddFlash("error", "Your teacher session has ended. Please log in again.")
			a.save(w, r, s)
			http.Redirect(w, r, "/teacher", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
	})
}

func (a *Authority) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := a.Load(r)
		if !s.Admin {
			s.AddFlash("error", "Please log in as administrator.")
			a.save(w, r, s)
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
	})
}
