package server

import (
	"errors"
	"net/http"
	"strconv"

	"lesson-library/internal/logx"
	"lesson-library/internal/model"
	"lesson-library/internal/session"
	"lesson-library/internal/teachers"
)

type adminPage struct {
	Lessons   int
	Downloads int
	Teacher   *model.TeacherCredential
	Pending   []model.PendingRequest
}

// handleAdminDashboard shows totals, the active teacher and the pending queue.
func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := adminPage{Pending: s.workflow.Pending(ctx)}
	page.Lessons, page.Downloads = s.catalog.Stats(ctx)
	if cred, ok := s.creds.Active(ctx); ok {
		page.Teacher = cred
	}
	s.render(w, r, http.StatusOK, "admin.html", "Administration", page)
}

// handleApprove promotes pending[index]. The form also posts the username it
// showed so a reordered queue is detected instead of approving someone else.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(r.PostForm.Get("index"))
	if err != nil {
		s.redirectWithFlash(w, r, sess, "error", "Invalid request.", "/admin")
		return
	}

	cred, err := s.workflow.Approve(ctx, index, r.PostForm.Get("username"))
	switch {
	case errors.Is(err, teachers.ErrStaleIndex):
		s.redirectWithFlash(w, r, sess, "error", "The pending list changed. Please review it and try again.", "/admin")
	case err != nil:
		logx.Error("approve failed", logx.Fields{"rid": RequestIDFromContext(ctx), "index": index}, err)
		s.redirectWithFlash(w, r, sess, "error", msgSaveFailed, "/admin")
	case cred == nil:
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
	default:
		s.metrics.RecordApproval()
		s.audit(r, AuditActionApprove, adminAccount, true, logx.Fields{"username": cred.Username, "index": index})
		s.redirectWithFlash(w, r, sess, "success", cred.Username+" is now the active teacher.", "/admin")
	}
}

// handleDeleteTeacher removes the active teacher. Their sessions stop
// working on the next request.
func (s *Server) handleDeleteTeacher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	if err := s.workflow.DeleteTeacher(ctx); err != nil {
		logx.Error("delete teacher failed", logx.Fields{"rid": RequestIDFromContext(ctx)}, err)
		s.redirectWithFlash(w, r, sess, "error", msgSaveFailed, "/admin")
		return
	}
	s.audit(r, AuditActionTeacherDelete, adminAccount, true, nil)
	s.redirectWithFlash(w, r, sess, "success", "Teacher account deleted.", "/admin")
}
