package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"lesson-library/internal/logx"
	"lesson-library/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"index.html",
	"register.html",
	"teacher_login.html",
	"upload.html",
	"admin_login.html",
	"admin.html",
	"not_found.html",
}

var templateFuncs = template.FuncMap{
	"size": formatSize,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"inc": func(i int) int { return i + 1 },
}

// parsePages parses each page together with the shared layout.
func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// view is what every page template receives.
type view struct {
	Title   string
	Flashes []session.Flash
	Teacher *session.TeacherClaim
	Admin   bool
	Data    any
}

// render executes page inside the layout. Pending flashes are consumed.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	sess := s.sessions.Load(r)
	v := view{
		Title:   title,
		Flashes: sess.Flashes(),
		Teacher: sess.Teacher,
		Admin:   sess.Admin,
		Data:    data,
	}

	var buf bytes.Buffer
	if err := s.pages[page].Execute(&buf, v); err != nil {
		logx.Error("render failed", logx.Fields{"page": page}, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if len(v.Flashes) > 0 {
		s.saveSession(w, r, sess)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Save(w, r); err != nil {
		logx.Error("session save failed", logx.Fields{"rid": RequestIDFromContext(r.Context())}, err)
	}
}

// redirectWithFlash stores a one-shot message and sends the browser to url.
func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, sess *session.Session, kind, msg, url string) {
	sess.AddFlash(kind, msg)
	s.saveSession(w, r, sess)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "not_found.html", "Not found", nil)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
