package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lesson-library/internal/catalog"
	"lesson-library/internal/logx"
	"lesson-library/internal/model"
	"lesson-library/internal/session"
	"lesson-library/internal/store"

	"github.com/gorilla/mux"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

type uploadPage struct {
	Lessons  []model.Lesson
	Subjects []string
	Accept   string
	MaxBytes int64
}

// handleUpload shows the teacher's page and accepts new lesson files.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "upload.html", "My materials", uploadPage{
			Lessons:  s.catalog.List(ctx, catalog.Filter{}),
			Subjects: s.catalog.Subjects(ctx),
			Accept:   strings.Join(s.gateway.AllowedList(), ","),
			MaxBytes: s.maxUpload,
		})
		return
	}

	sess := session.FromContext(ctx)
	rid := RequestIDFromContext(ctx)
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.metrics.RecordUploadError()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.redirectWithFlash(w, r, sess, "error", "File too large. The limit is "+formatSize(s.maxUpload)+".", "/upload")
			return
		}
		logx.Warn("upload form unreadable", logx.Fields{"rid": rid, "error": err.Error()})
		s.redirectWithFlash(w, r, sess, "error", "Upload failed, please try again.", "/upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := catalog.UploadRequest{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		Subject:     r.PostFormValue("subject"),
	}
	file, header, err := r.FormFile("file")
	if err == nil {
		defer func() { _ = file.Close() }()
		req.Filename = header.Filename
		req.Body = file
	} else if !errors.Is(err, http.ErrMissingFile) {
		logx.Warn("upload file unreadable", logx.Fields{"rid": rid, "error": err.Error()})
	}

	lesson, err := s.gateway.Upload(ctx, req)
	switch {
	case errors.Is(err, catalog.ErrMissingFields):
		s.metrics.RecordUploadError()
		s.redirectWithFlash(w, r, sess, "error", "Please fill in the title and choose a file.", "/upload")
	case errors.Is(err, catalog.ErrExtensionNotAllowed):
		s.metrics.RecordUploadError()
		s.redirectWithFlash(w, r, sess, "error",
			"File type not allowed. Allowed: "+strings.Join(s.gateway.AllowedList(), ", ")+".", "/upload")
	case err != nil:
		s.metrics.RecordUploadError()
		logx.Error("upload failed", logx.Fields{"rid": rid, "filename": req.Filename}, err)
		s.redirectWithFlash(w, r, sess, "error", msgSaveFailed, "/upload")
	default:
		s.metrics.RecordUpload(lesson.SizeBytes, time.Since(start))
		s.audit(r, AuditActionLessonUpload, sess.Teacher.Username, true, logx.Fields{"id": lesson.ID, "filename": lesson.Filename})
		s.redirectWithFlash(w, r, sess, "success", "Uploaded \""+lesson.Title+"\" as "+lesson.Filename+".", "/upload")
	}
}

// handleDelete removes a lesson and its file.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.redirectWithFlash(w, r, sess, "error", "Lesson not found.", "/upload")
		return
	}

	lesson, err := s.gateway.Delete(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.redirectWithFlash(w, r, sess, "error", "Lesson not found.", "/upload")
	case err != nil:
		logx.Error("delete lesson failed", logx.Fields{"rid": RequestIDFromContext(ctx), "id": id}, err)
		s.redirectWithFlash(w, r, sess, "error", msgSaveFailed, "/upload")
	default:
		s.metrics.RecordLessonDeleted()
		s.audit(r, AuditActionLessonDelete, sess.Teacher.Username, true, logx.Fields{"id": id, "filename": lesson.Filename})
		s.redirectWithFlash(w, r, sess, "success", "Deleted \""+lesson.Title+"\".", "/upload")
	}
}

// handleExport streams every stored file as one zip archive.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": catalog.ExportName}))

	cw := &countingWriter{w: w}
	err := s.gateway.Export(ctx, cw)
	s.audit(r, AuditActionCatalogExport, session.FromContext(ctx).Teacher.Username, err == nil, logx.Fields{"bytes": cw.n})
	if err != nil {
		logx.Error("export failed", logx.Fields{"rid": RequestIDFromContext(ctx), "bytes": cw.n}, err)
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			http.Error(w, "export failed", http.StatusInternalServerError)
		}
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
