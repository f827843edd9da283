// security.go - Security headers, proxy trust and CSRF protection.
package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"moard/internal/session"
)

const (
	csrfCookieName = "_csrf"
	csrfFieldName  = "_csrf"
	csrfHeaderName = "CSRF-Token"
)

// securityHeaders sets the usual hardening headers. Content-Security-Policy
// is deliberately left unset; pages load third-party assets.
func securityHeaders(production bool) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		CustomFrameOptionsValue: "SAMEORIGIN",
		ContentTypeNosniff:      true,
		BrowserXssFilter:        true,
		CustomBrowserXssValue:   "0",
		ReferrerPolicy:          "no-referrer",
		STSSeconds:              15552000,
		STSIncludeSubdomains:    true,
		// HSTS is only sent over HTTPS, including forwarded HTTPS.
		SSLProxyHeaders: map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:   !production,
	})

	return func(next http.Handler) http.Handler {
		h := sm.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := w.Header()
			hdr.Set("Cross-Origin-Opener-Policy", "same-origin")
			hdr.Set("Cross-Origin-Resource-Policy", "same-origin")
			hdr.Set("Origin-Agent-Cluster", "?1")
			hdr.Set("X-DNS-Prefetch-Control", "off")
			hdr.Set("X-Download-Options", "noopen")
			hdr.Set("X-Permitted-Cross-Domain-Policies", "none")
			hdr.Del("X-Powered-By")
			h.ServeHTTP(w, r)
		})
	}
}

// trustProxy honours one reverse proxy hop: the client address comes from
// the last X-Forwarded-For entry. schemeMiddleware handles
// X-Forwarded-Proto.
func trustProxy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			ip := strings.TrimSpace(parts[len(parts)-1])
			if net.ParseIP(ip) != nil {
				r2 := new(http.Request)
				*r2 = *r
				r2.RemoteAddr = net.JoinHostPort(ip, "0")
				r = r2
			}
		}
		next.ServeHTTP(w, r)
	})
}

// isPlaintext reports whether the client reached us over plain HTTP.
func isPlaintext(r *http.Request, trust, production bool) bool {
	if r.TLS != nil {
		return false
	}
	if trust {
		switch strings.ToLower(r.Header.Get("X-Forwarded-Proto")) {
		case "https":
			return false
		case "http":
			return true
		}
	}
	// Production sits behind a TLS terminating proxy.
	return !production
}

// schemeMiddleware tells the CSRF check which scheme the client used, so
// same-origin checks compare against the right origin.
func schemeMiddleware(trust, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPlaintext(r, trust, production) {
				r = csrf.PlaintextHTTPRequest(r)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// csrfProtection validates a token on every unsafe request. The token is
// read from the "_csrf" form field or the CSRF-Token header, so it must run
// after the multipart parser.
func csrfProtection(secret string, onError http.Handler) func(http.Handler) http.Handler {
	return csrf.Protect(
		session.DeriveKey(secret, "moard csrf", 32),
		csrf.CookieName(csrfCookieName),
		csrf.FieldName(csrfFieldName),
		csrf.RequestHeader(csrfHeaderName),
		csrf.Path("/"),
		csrf.Secure(true),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.ErrorHandler(onError),
	)
}

func (s *Server) csrfFailed(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("csrf check failed",
		zap.String("rid", RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.NamedError("reason", csrf.FailureReason(r)))
	s.views.Error(w, r, http.StatusForbidden, "Invalid or missing form token. Reload the page and try again.")
}
