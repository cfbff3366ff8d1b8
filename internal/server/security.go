// security.go - Security response headers
package server

import "net/http"

// securityHeadersMiddleware adds security headers to all responses
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		// Prevent clickjacking
		h.Set("X-Frame-Options", "SAMEORIGIN")

		// Prevent MIME sniffing
		h.Set("X-Content-Type-Options", "nosniff")

		h.Set("Referrer-Policy", "same-origin")

		// /view embeds PDFs and images from the same origin, so frames are
		// allowed for 'self' only.
		csp := "default-src 'self'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; " +
			"object-src 'self'; " +
			"frame-ancestors 'self'; " +
			"base-uri 'self'; " +
			"form-action 'self'"
		h.Set("Content-Security-Policy", csp)

		// Permissions Policy - disable unused browser features
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}
