package server

import (
	"net/http"
	"strings"

	"lesson-library/internal/catalog"
	"lesson-library/internal/model"
)

type indexPage struct {
	Query    string
	Subject  string
	Subjects []string
	Lessons  []model.Lesson
}

// handleIndex lists lessons, optionally filtered by ?q= and ?subject=.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := indexPage{
		Query:   strings.TrimSpace(q.Get("q")),
		Subject: strings.TrimSpace(q.Get("subject")),
	}
	page.Lessons = s.catalog.List(r.Context(), catalog.Filter{Query: page.Query, Subject: page.Subject})
	page.Subjects = s.catalog.Subjects(r.Context())

	s.render(w, r, http.StatusOK, "index.html", "Lessons", page)
}
