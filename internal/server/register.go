package server

import (
	"errors"
	"net/http"
	"strings"

	"lesson-library/internal/logx"
	"lesson-library/internal/teachers"
)

const msgSaveFailed = "Could not save, please try again."

type registerPage struct {
	Username string
}

// handleRegister shows the registration form and queues submitted requests.
// Once a teacher is active the form is closed and visitors are sent to login.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.sessions.Load(r)

	if r.Method == http.MethodGet {
		if _, ok := s.creds.Active(ctx); ok {
			s.redirectWithFlash(w, r, sess, "info", "A teacher account already exists. Please log in.", "/teacher")
			return
		}
		s.render(w, r, http.StatusOK, "register.html", "Register", registerPage{})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")

	outcome, err := s.workflow.Submit(ctx, username, r.PostForm.Get("password"), r.PostForm.Get("confirm"))
	switch {
	case errors.Is(err, teachers.ErrTeacherActive):
		s.redirectWithFlash(w, r, sess, "error", "A teacher is already active. Please log in instead.", "/teacher")
	case errors.Is(err, teachers.ErrMissingFields),
		errors.Is(err, teachers.ErrPasswordMismatch),
		errors.Is(err, teachers.ErrPasswordTooShort):
		s.redirectWithFlash(w, r, sess, "error", capitalize(err.Error())+".", "/register")
	case err != nil:
		logx.Error("registration failed", logx.Fields{"rid": RequestIDFromContext(ctx)}, err)
		s.redirectWithFlash(w, r, sess, "error", msgSaveFailed, "/register")
	case outcome == teachers.OutcomeAlreadyPending:
		s.redirectWithFlash(w, r, sess, "info", "Your request was already submitted. Please wait for approval.", "/")
	default:
		s.metrics.RecordRegistration()
		s.audit(r, AuditActionRegister, strings.TrimSpace(username), true, nil)
		s.redirectWithFlash(w, r, sess, "success", "Request submitted. The administrator will review it.", "/")
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
