package view

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moard/internal/session"
)

const testLayout = `{{define "layout"}}<title>{{block "title" .}}Moard{{end}}</title>{{if .UserID}}[{{.UserID}}]{{end}}{{template "content" .}}{{end}}`

func writeViews(t *testing.T, pages map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "layout.html"), []byte(testLayout), 0o644))
	for name, body := range pages {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".html"), []byte(body), 0o644))
	}
	return dir
}

func TestEngine_Render(t *testing.T) {
	dir := writeViews(t, map[string]string{
		"hello": `{{define "title"}}Hi{{end}}{{define "content"}}Hello {{.Name}}{{end}}`,
	})
	e, err := New(dir, false, zap.NewNop())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	e.Render(rr, req, http.StatusCreated, "hello", Data{"Name": "<b>world</b>"})

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	require.Contains(t, body, "<title>Hi</title>")
	require.Contains(t, body, "Hello &lt;b&gt;world&lt;/b&gt;")
}

func TestEngine_RenderAddsSessionUser(t *testing.T) {
	dir := writeViews(t, map[string]string{
		"page": `{{define "content"}}ok{{end}}`,
	})
	e, err := New(dir, false, zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s := sessions.NewSession(nil, session.CookieName)
	session.SetUserID(s, "u42")
	req = req.WithContext(session.NewContext(req.Context(), s))

	rr := httptest.NewRecorder()
	e.Render(rr, req, http.StatusOK, "page", nil)
	require.Contains(t, rr.Body.String(), "[u42]ok")
	require.Contains(t, rr.Body.String(), "<title>Moard</title>")
}

func TestEngine_UnknownPage(t *testing.T) {
	e, err := New(writeViews(t, nil), false, zap.NewNop())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	e.Render(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, "nope", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestEngine_Reload(t *testing.T) {
	dir := writeViews(t, map[string]string{
		"page": `{{define "content"}}v1{{end}}`,
	})
	e, err := New(dir, true, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte(`{{define "content"}}v2{{end}}`), 0o644))
	rr := httptest.NewRecorder()
	e.Render(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, "page", nil)
	require.True(t, strings.HasSuffix(rr.Body.String(), "v2"))
}

func TestNew_MissingLayout(t *testing.T) {
	_, err := New(t.TempDir(), false, zap.NewNop())
	require.Error(t, err)
}

func TestNew_ParsesShippedViews(t *testing.T) {
	e, err := New(filepath.Join("..", "..", "views"), false, zap.NewNop())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	e.Error(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, "no such page")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "404 Not Found")
	require.Contains(t, rr.Body.String(), "no such page")
}
