package session

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// UserIDKey is the session value holding the logged-in user's id.
const UserIDKey = "userId"

type ctxKey struct{}

// Load attaches the request's session to its context. A store failure is
// logged and the request continues with an empty session.
func Load(store sessions.Store, name string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := store.Get(r, name)
			if err != nil {
				logger.Error("session load failed", zap.Error(err))
			}
			if s == nil {
				s = sessions.NewSession(store, name)
				s.IsNew = true
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
		})
	}
}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *sessions.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by Load, or nil.
func FromContext(ctx context.Context) *sessions.Session {
	s, _ := ctx.Value(ctxKey{}).(*sessions.Session)
	return s
}

// UserID returns the logged-in user's id stored in s.
func UserID(s *sessions.Session) (string, bool) {
	if s == nil {
		return "", false
	}
	id, ok := s.Values[UserIDKey].(string)
	return id, ok && id != ""
}

// SetUserID marks s as belonging to user id.
func SetUserID(s *sessions.Session, id string) {
	s.Values[UserIDKey] = id
}

// Destroy clears s and arranges for the next Save to delete it.
func Destroy(s *sessions.Session) {
	for k := range s.Values {
		delete(s.Values, k)
	}
	s.Options.MaxAge = -1
}
