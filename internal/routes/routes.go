// Package routes holds the page handlers mounted at "/".
package routes

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"moard/internal/db"
	"moard/internal/metrics"
	"moard/internal/ratelimit"
	"moard/internal/session"
	"moard/internal/upload"
	"moard/internal/view"
)

// Users is the part of the user repository the handlers need.
type Users interface {
	Authenticate(ctx context.Context, username, password string) (db.User, error)
	FindByID(ctx context.Context, id string) (db.User, error)
	SetAvatar(ctx context.Context, id, filename string) error
}

// Sessions saves and rotates the request session.
type Sessions interface {
	Save(r *http.Request, w http.ResponseWriter, s *sessions.Session) error
	Regenerate(r *http.Request, s *sessions.Session) error
}

type Deps struct {
	Users        Users
	Sessions     Sessions
	Views        *view.Engine
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	LoginLimiter *ratelimit.Limiter
	Lockout      *ratelimit.Lockout
}

type handler struct {
	Deps
}

// New returns the page router.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Get("/", h.home)
	r.Get("/login", h.loginForm)

	login := http.Handler(http.HandlerFunc(h.login))
	if d.LoginLimiter != nil {
		d.LoginLimiter.OnLimit = h.loginLimited
		login = d.LoginLimiter.Middleware(login)
	}
	r.Method(http.MethodPost, "/login", login)
	r.Post("/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)
		r.Get("/profile", h.profile)
		r.Post("/profile/avatar", h.avatar)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Views.Error(w, r, http.StatusNotFound, "The page you are looking for does not exist.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.Views.Error(w, r, http.StatusMethodNotAllowed, "")
	})
	return r
}

type userCtxKey struct{}

// requireUser loads the session user or redirects to the login page.
func (h *handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		if u == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userCtxKey{}, u)))
	})
}

func userFromContext(ctx context.Context) *db.User {
	u, _ := ctx.Value(userCtxKey{}).(*db.User)
	return u
}

// currentUser returns the logged-in user, or nil. A session pointing at a
// deleted user is cleared. ok is false when a response was already written.
func (h *handler) currentUser(w http.ResponseWriter, r *http.Request) (u *db.User, ok bool) {
	s := session.FromContext(r.Context())
	uid, found := session.UserID(s)
	if !found {
		return nil, true
	}
	user, err := h.Users.FindByID(r.Context(), uid)
	switch {
	case errors.Is(err, db.ErrNotFound):
		session.Destroy(s)
		if err := h.Sessions.Save(r, w, s); err != nil {
			h.Logger.Warn("session clear failed", zap.Error(err))
		}
		return nil, true
	case err != nil:
		h.serverError(w, r, "user lookup failed", err)
		return nil, false
	}
	return &user, true
}

func (h *handler) home(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	data := view.Data{}
	if u != nil {
		data["User"] = u
	}
	h.Views.Render(w, r, http.StatusOK, "index", data)
}

func (h *handler) loginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.UserID(session.FromContext(r.Context())); ok {
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	h.Views.Render(w, r, http.StatusOK, "login", nil)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		h.Views.Render(w, r, http.StatusBadRequest, "login", view.Data{
			"Error":    "Username and password are required.",
			"Username": username,
		})
		return
	}

	if h.Lockout != nil {
		if locked, _ := h.Lockout.Locked(username); locked {
			h.Metrics.RecordLogin("locked")
			h.Logger.Warn("login for locked account", zap.String("username", username))
			h.Views.Render(w, r, http.StatusTooManyRequests, "login", view.Data{
				"Error":    "Too many failed attempts for this account. Please try again later.",
				"Username": username,
			})
			return
		}
	}

	user, err := h.Users.Authenticate(r.Context(), username, password)
	if errors.Is(err, db.ErrInvalidCredentials) {
		h.Metrics.RecordLogin("failure")
		h.Logger.Info("login failed", zap.String("username", username))
		if h.Lockout != nil {
			if locked, until := h.Lockout.Fail(username); locked {
				h.Logger.Warn("account locked", zap.String("username", username), zap.Time("until", until))
			}
		}
		h.Views.Render(w, r, http.StatusUnauthorized, "login", view.Data{
			"Error":    "Invalid username or password.",
			"Username": username,
		})
		return
	}
	if err != nil {
		h.serverError(w, r, "login lookup failed", err)
		return
	}

	s := session.FromContext(r.Context())
	if s == nil {
		h.serverError(w, r, "login failed", errors.New("no session in request"))
		return
	}
	if err := h.Sessions.Regenerate(r, s); err != nil {
		h.serverError(w, r, "session regenerate failed", err)
		return
	}
	session.SetUserID(s, user.ID.Hex())
	if err := h.Sessions.Save(r, w, s); err != nil {
		h.serverError(w, r, "session save failed", err)
		return
	}

	if h.Lockout != nil {
		h.Lockout.Reset(username)
	}
	h.Metrics.RecordLogin("success")
	h.Logger.Info("login", zap.String("user_id", user.ID.Hex()))
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *handler) loginLimited(w http.ResponseWriter, r *http.Request) {
	h.Metrics.RecordLogin("limited")
	h.Views.Render(w, r, http.StatusTooManyRequests, "login", view.Data{
		"Error": "Too many login attempts. Please wait a minute and try again.",
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if s := session.FromContext(r.Context()); s != nil {
		session.Destroy(s)
		if err := h.Sessions.Save(r, w, s); err != nil {
			h.serverError(w, r, "session destroy failed", err)
			return
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	h.Views.Render(w, r, http.StatusOK, "profile", view.Data{"User": userFromContext(r.Context())})
}

func (h *handler) avatar(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	f := upload.FromContext(r.Context())
	if f == nil {
		h.Views.Render(w, r, http.StatusBadRequest, "profile", view.Data{
			"User":  u,
			"Error": "Please choose an image to upload.",
		})
		return
	}

	if err := h.Users.SetAvatar(r.Context(), u.ID.Hex(), f.Filename); err != nil {
		h.serverError(w, r, "avatar update failed", err)
		return
	}
	h.Logger.Info("avatar updated", zap.String("user_id", u.ID.Hex()), zap.String("filename", f.Filename))
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.Logger.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	h.Views.Error(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}
