package server

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"lesson-library/internal/catalog"
	"lesson-library/internal/logx"

	"github.com/gorilla/mux"
)

// inlineTypes are the extensions /view shows in the browser.
var inlineTypes = map[string]string{
	"pdf":  "application/pdf",
	"txt":  "text/plain; charset=utf-8",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// handleDownload streams a lesson file as an attachment and counts it.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	s.serveFile(w, r, name, "attachment", "application/octet-stream", true)
}

// handleView shows pdf, text and image files inline. Anything else is sent
// to /download.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	ctype, ok := inlineTypes[catalog.Extension(name)]
	if !ok {
		http.Redirect(w, r, "/download/"+url.PathEscape(name), http.StatusFound)
		return
	}
	s.serveFile(w, r, name, "inline", ctype, false)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, name, disposition, ctype string, count bool) {
	ctx := r.Context()
	rid := RequestIDFromContext(ctx)

	obj, err := s.gateway.Open(ctx, name)
	if errors.Is(err, catalog.ErrFileNotFound) {
		s.metrics.RecordDownloadMiss()
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		logx.Error("open lesson file", logx.Fields{"rid": rid, "filename": name}, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = obj.Content.Close() }()

	if count && countsAsDownload(r) {
		s.catalog.IncrementDownload(ctx, name)
		s.metrics.RecordDownload()
	}

	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	http.ServeContent(w, r, name, obj.ModTime, obj.Content)
}

// countsAsDownload is false for range requests that resume or continue a
// transfer. Only a whole-file request or a range from byte 0 is counted.
func countsAsDownload(r *http.Request) bool {
	rng := strings.TrimSpace(r.Header.Get("Range"))
	if rng == "" {
		return true
	}
	ranges, ok := strings.CutPrefix(rng, "bytes=")
	return ok && strings.HasPrefix(strings.TrimSpace(ranges), "0-")
}
