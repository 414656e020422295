package middleware

import (
	"net/http"
)

// SecurityHeadersMiddleware marks every response as uncacheable JSON that
// must not be sniffed or framed. The relay serves no HTML.
type SecurityHeadersMiddleware struct {
	hsts bool
}

// NewSecurityHeadersMiddleware sets Strict-Transport-Security when hsts is
// true, which is the case whenever the bot API pushes to an https webhook.
func NewSecurityHeadersMiddleware(hsts bool) *SecurityHeadersMiddleware {
	return &SecurityHeadersMiddleware{hsts: hsts}
}

func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if m.hsts {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
