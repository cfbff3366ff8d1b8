package server

import (
	"net/http"

	"lesson-library/internal/logx"
)

const (
	// One message for every failed login so usernames cannot be probed.
	msgBadLogin = "Invalid username or password."
	msgLocked   = "Too many failed attempts. Please try again later."
)

// handleTeacherLogin serves the login form and checks the active teacher's
// credential.
func (s *Server) handleTeacherLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	if r.Method == http.MethodGet {
		if sess.Teacher != nil {
			if cred, ok := s.creds.Active(r.Context()); ok && cred.Username == sess.Teacher.Username {
				http.Redirect(w, r, "/upload", http.StatusSeeOther)
				return
			}
		}
		s.render(w, r, http.StatusOK, "teacher_login.html", "Teacher login", nil)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	// Matched exactly as typed, like the password.
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	account := teacherAccount(username)
	fields := logx.Fields{"rid": RequestIDFromContext(r.Context()), "username": username, "ip": s.clientIP(r)}

	if locked, _ := s.lockout.IsLocked(account); locked {
		logx.Warn("teacher login refused: locked", fields)
		s.redirectWithFlash(w, r, sess, "error", msgLocked, "/teacher")
		return
	}

	if !s.workflow.Authenticate(r.Context(), username, password) {
		s.metrics.RecordLogin("teacher", false)
		if locked, until := s.lockout.RecordFailedAttempt(account); locked {
			fields["locked_until"] = until
		}
		logx.Warn("teacher login failed", fields)
		s.audit(r, AuditActionLogin, username, false, logx.Fields{"role": "teacher"})
		s.redirectWithFlash(w, r, sess, "error", msgBadLogin, "/teacher")
		return
	}

	s.metrics.RecordLogin("teacher", true)
	s.lockout.RecordSuccessfulLogin(account)
	s.sessions.LoginTeacher(sess, username)
	s.audit(r, AuditActionLogin, username, true, logx.Fields{"role": "teacher"})
	s.redirectWithFlash(w, r, sess, "success", "Welcome, "+username+".", "/upload")
}

func (s *Server) handleTeacherLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	s.sessions.LogoutTeacher(sess)
	s.redirectWithFlash(w, r, sess, "info", "You are logged out.", "/")
}

// handleAdminLogin checks the static admin password.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	if r.Method == http.MethodGet {
		if sess.Admin {
			http.Redirect(w, r, "/admin", http.StatusSeeOther)
			return
		}
		s.render(w, r, http.StatusOK, "admin_login.html", "Admin login", nil)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	fields := logx.Fields{"rid": RequestIDFromContext(r.Context()), "ip": s.clientIP(r)}

	if locked, _ := s.lockout.IsLocked(adminAccount); locked {
		logx.Warn("admin login refused: locked", fields)
		s.redirectWithFlash(w, r, sess, "error", msgLocked, "/admin/login")
		return
	}

	if !s.sessions.AdminPasswordOK(r.PostForm.Get("password")) {
		s.metrics.RecordLogin("admin", false)
		s.lockout.RecordFailedAttempt(adminAccount)
		logx.Warn("admin login failed", fields)
		s.audit(r, AuditActionLogin, adminAccount, false, logx.Fields{"role": "admin"})
		s.redirectWithFlash(w, r, sess, "error", msgBadLogin, "/admin/login")
		return
	}

	s.metrics.RecordLogin("admin", true)
	s.lockout.RecordSuccessfulLogin(adminAccount)
	s.sessions.LoginAdmin(sess)
	s.audit(r, AuditActionLogin, adminAccount, true, logx.Fields{"role": "admin"})
	s.saveSession(w, r, sess)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	s.sessions.LogoutAdmin(sess)
	s.redirectWithFlash(w, r, sess, "info", "Administrator logged out.", "/")
}
