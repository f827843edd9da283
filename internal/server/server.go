package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"moard/internal/metrics"
	"moard/internal/session"
	"moard/internal/upload"
	"moard/internal/view"
)

type Config struct {
	Addr           string // e.g. ":3000"
	Production     bool
	TrustProxy     bool
	SessionSecret  string
	UploadMaxBytes int64
	PublicDir      string
	Version        string
}

// Deps are the collaborators the server composes. Router serves every
// path not handled by the server itself.
type Deps struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Sessions *session.Store
	Storage  upload.Storage
	Views    *view.Engine
	Router   http.Handler
	Checks   []Check
}

// compressibleTypes are gzipped when the client accepts it. Images are
// already compressed.
var compressibleTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"text/javascript",
	"application/javascript",
	"application/json",
	"image/svg+xml",
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	views      *view.Engine
	version    string
	checks     []Check
}

func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("server: session store is required")
	case deps.Storage == nil:
		return nil, errors.New("server: upload storage is required")
	case deps.Views == nil:
		return nil, errors.New("server: view engine is required")
	case deps.Router == nil:
		return nil, errors.New("server: router is required")
	case len(cfg.SessionSecret) < 32:
		return nil, errors.New("server: session secret must be at least 32 characters")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Server{
		logger:  deps.Logger,
		views:   deps.Views,
		version: cfg.Version,
		checks:  deps.Checks,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLog(deps.Logger, deps.Metrics), middleware.Recoverer)
	r.Use(middleware.Compress(5, compressibleTypes...))
	if cfg.TrustProxy {
		r.Use(trustProxy)
	}
	r.Use(schemeMiddleware(cfg.TrustProxy, cfg.Production), securityHeaders(cfg.Production))

	r.Get("/live", s.HandleLive)
	r.Get("/ready", s.HandleReady)
	r.Get("/health", s.HandleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	if h, ok := deps.Storage.(http.Handler); ok {
		r.Handle("/static/uploads/*", http.StripPrefix("/static/uploads", h))
	}
	r.Handle("/static/*", http.StripPrefix("/static", http.FileServer(noListingFS{http.Dir(cfg.PublicDir)})))

	r.Group(func(r chi.Router) {
		r.Use(
			session.Load(deps.Sessions, session.CookieName, deps.Logger),
			upload.Middleware(upload.Options{
				Field:    upload.DefaultField,
				MaxBytes: cfg.UploadMaxBytes,
				Storage:  deps.Storage,
				UserID: func(r *http.Request) (string, bool) {
					return session.UserID(session.FromContext(r.Context()))
				},
				OnError: func(w http.ResponseWriter, r *http.Request, err error) {
					s.views.Error(w, r, upload.StatusCode(err), upload.Message(err))
				},
				Logger:  deps.Logger,
				Metrics: deps.Metrics,
			}),
			csrfProtection(cfg.SessionSecret, http.HandlerFunc(s.csrfFailed)),
		)
		r.Mount("/", deps.Router)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(deps.Logger.Named("http")),
	}
	return s, nil
}

// Handler returns the composed handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// noListingFS hides directory listings; directories with an index.html
// are still served.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		index, err := n.fs.Open(name + "/index.html")
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		_ = index.Close()
	}
	return f, nil
}
