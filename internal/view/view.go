// Package view renders the server-side HTML pages.
//
// Every page in the views directory is parsed together with layout.html.
// A page defines the "title" and "content" blocks; the layout executes
// them.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"moard/internal/session"
)

const layoutFile = "layout.html"

// Data is the template context passed to Render.
type Data map[string]any

// Engine parses and caches templates. In development mode it reparses on
// every render so edits show up without a restart.
type Engine struct {
	dir    string
	reload bool
	logger *zap.Logger

	mu    sync.RWMutex
	pages map[string]*template.Template
}

// New parses every page in dir.
func New(dir string, reload bool, logger *zap.Logger) (*Engine, error) {
	e := &Engine{dir: dir, reload: reload, logger: logger}
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

var funcs = template.FuncMap{
	"year": func() int { return time.Now().Year() },
}

func (e *Engine) load() error {
	layout := filepath.Join(e.dir, layoutFile)
	if _, err := os.Stat(layout); err != nil {
		return fmt.Errorf("views: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(e.dir, "*.html"))
	if err != nil {
		return err
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		if base == layoutFile {
			continue
		}
		name := strings.TrimSuffix(base, ".html")
		t, err := template.New(name).Funcs(funcs).ParseFiles(layout, f)
		if err != nil {
			return fmt.Errorf("views: parse %s: %w", base, err)
		}
		pages[name] = t
	}

	e.mu.Lock()
	e.pages = pages
	e.mu.Unlock()
	return nil
}

func (e *Engine) lookup(name string) (*template.Template, error) {
	if e.reload {
		if err := e.load(); err != nil {
			return nil, err
		}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.pages[name]
	if !ok {
		return nil, fmt.Errorf("views: unknown page %q", name)
	}
	return t, nil
}

// Render executes page name with data and writes it with status. The CSRF
// form field and token, and the session user id, are added to data.
func (e *Engine) Render(w http.ResponseWriter, r *http.Request, status int, name string, data Data) {
	t, err := e.lookup(name)
	if err != nil {
		e.logger.Error("template lookup failed", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if data == nil {
		data = Data{}
	}
	data["CSRFField"] = csrf.TemplateField(r)
	data["CSRFToken"] = csrf.Token(r)
	if uid, ok := session.UserID(session.FromContext(r.Context())); ok {
		data["UserID"] = uid
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		e.logger.Error("template render failed", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Error renders the error page with an HTTP status and a user-facing message.
func (e *Engine) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	e.Render(w, r, status, "error", Data{
		"Status":  status,
		"Title":   http.StatusText(status),
		"Message": message,
	})
}
