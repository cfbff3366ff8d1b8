package server

import (
	"net/http"

	"lesson-library/internal/logx"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionLogin         AuditAction = "login"
	AuditActionRegister      AuditAction = "register"
	AuditActionApprove       AuditAction = "approve"
	AuditActionTeacherDelete AuditAction = "teacher_delete"
	AuditActionLessonUpload  AuditAction = "lesson_upload"
	AuditActionLessonDelete  AuditAction = "lesson_delete"
	AuditActionCatalogExport AuditAction = "catalog_export"
)

// audit writes one audit record to the log. Records carry audit=true so
// they can be filtered out of the access log stream.
func (s *Server) audit(r *http.Request, action AuditAction, actor string, success bool, details logx.Fields) {
	fields := logx.Fields{
		"audit":   true,
		"action":  string(action),
		"actor":   actor,
		"success": success,
		"rid":     RequestIDFromContext(r.Context()),
		"ip":      s.clientIP(r),
	}
	for k, v := range details {
		fields[k] = v
	}
	logx.Info("audit", fields)
}
