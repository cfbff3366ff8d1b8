// compression.go - gzip response compression for pages and metrics.
package server

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

// compressionMiddleware gzips responses for clients that accept it. Lesson
// files and the export archive pass through untouched.
func compressionMiddleware(next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipCompression(r) {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// shouldSkipCompression determines if compression should be skipped for this request.
func shouldSkipCompression(r *http.Request) bool {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/download/"), strings.HasPrefix(path, "/view/"):
		return true
	case path == "/export":
		return true
	case path == "/upload" && r.Method == http.MethodPost:
		return true
	}
	return false
}
