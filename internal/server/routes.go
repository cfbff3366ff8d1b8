package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	teacher := s.sessions.RequireTeacher
	admin := s.sessions.RequireAdmin
	limited := s.limiter.middleware

	// Public
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/download/{filename}", s.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/view/{filename}", s.handleView).Methods(http.MethodGet)
	r.Handle("/register", limited(http.HandlerFunc(s.handleRegister))).Methods(http.MethodGet, http.MethodPost)

	// Teacher
	r.Handle("/teacher", limited(http.HandlerFunc(s.handleTeacherLogin))).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", s.handleTeacherLogout).Methods(http.MethodGet)
	r.Handle("/upload", teacher(http.HandlerFunc(s.handleUpload))).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/delete/{id:[0-9]+}", teacher(http.HandlerFunc(s.handleDelete))).Methods(http.MethodPost)
	r.Handle("/export", teacher(http.HandlerFunc(s.handleExport))).Methods(http.MethodGet)

	// Admin
	r.Handle("/admin/login", limited(http.HandlerFunc(s.handleAdminLogin))).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/admin/logout", s.handleAdminLogout).Methods(http.MethodGet)
	r.Handle("/admin", admin(http.HandlerFunc(s.handleAdminDashboard))).Methods(http.MethodGet)
	r.Handle("/admin/approve", admin(http.HandlerFunc(s.handleApprove))).Methods(http.MethodPost)
	r.Handle("/admin/delete-teacher", admin(http.HandlerFunc(s.handleDeleteTeacher))).Methods(http.MethodPost)

	// Ops
	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.HandleReady).Methods(http.MethodGet)
	r.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)

	return r
}
