package session

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// offlineStore returns a store whose client never reaches a server. Tests
// using it only exercise paths that do not touch the database.
func offlineStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return NewStore(client.Database("moard_test"), KeyPairs(testSecret), opts...)
}

func TestDeriveKey(t *testing.T) {
	a := DeriveKey(testSecret, "one", 32)
	b := DeriveKey(testSecret, "one", 32)
	c := DeriveKey(testSecret, "two", 32)
	d := DeriveKey("another secret entirely, 32 chars", "one", 32)

	require.Len(t, a, 32)
	require.True(t, bytes.Equal(a, b), "same inputs must give the same key")
	require.False(t, bytes.Equal(a, c), "purpose must change the key")
	require.False(t, bytes.Equal(a, d), "secret must change the key")
	require.Len(t, KeyPairs(testSecret), 2)
}

func TestNewStore_CookieDefaults(t *testing.T) {
	s := offlineStore(t, WithTTL(time.Hour))
	require.Equal(t, "/", s.Options.Path)
	require.True(t, s.Options.HttpOnly)
	require.True(t, s.Options.Secure)
	require.Equal(t, http.SameSiteStrictMode, s.Options.SameSite)
	require.Equal(t, 3600, s.Options.MaxAge)
}

func TestStore_NewWithoutCookie(t *testing.T) {
	s := offlineStore(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	sess, err := s.New(req, CookieName)
	require.NoError(t, err)
	require.True(t, sess.IsNew)
	require.Empty(t, sess.ID)
	require.Empty(t, sess.Values)
}

func TestStore_NewWithForgedCookie(t *testing.T) {
	s := offlineStore(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})

	sess, err := s.New(req, CookieName)
	require.NoError(t, err)
	require.True(t, sess.IsNew)
}

func TestStore_NewWithCookieFromOtherSecret(t *testing.T) {
	s := offlineStore(t)
	other := securecookie.CodecsFromPairs(KeyPairs("a different secret that is long enough")...)
	value, err := securecookie.EncodeMulti(CookieName, "some-id", other...)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: value})

	sess, err := s.New(req, CookieName)
	require.NoError(t, err)
	require.True(t, sess.IsNew)
}

func TestStore_SaveUninitializedIsSkipped(t *testing.T) {
	s := offlineStore(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	sess, err := s.New(req, CookieName)
	require.NoError(t, err)
	require.NoError(t, s.Save(req, rr, sess))
	require.Empty(t, rr.Header().Values("Set-Cookie"))
	require.Empty(t, sess.ID)
}

func TestStore_SaveNegativeMaxAgeExpiresCookie(t *testing.T) {
	s := offlineStore(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	sess, err := s.New(req, CookieName)
	require.NoError(t, err)
	Destroy(sess)
	require.NoError(t, s.Save(req, rr, sess))

	cookie := rr.Header().Get("Set-Cookie")
	require.True(t, strings.HasPrefix(cookie, CookieName+"="))
	require.Contains(t, cookie, "Max-Age=0")
}

func TestLoadMiddleware(t *testing.T) {
	s := offlineStore(t)
	var got *sessions.Session
	h := Load(s, CookieName, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, got)
	require.True(t, got.IsNew)

	_, ok := UserID(got)
	require.False(t, ok)
	SetUserID(got, "65f0c0ffee")
	id, ok := UserID(got)
	require.True(t, ok)
	require.Equal(t, "65f0c0ffee", id)
}

func TestFromContext_Missing(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))
	_, ok := UserID(nil)
	require.False(t, ok)
}

func TestStore_UnchangedDetectsEdits(t *testing.T) {
	s := offlineStore(t)
	sess := sessions.NewSession(s, CookieName)
	require.False(t, s.unchanged(sess), "a session never loaded is always written")

	SetUserID(sess, "user-1")
	data, err := securecookie.EncodeMulti(CookieName, values(sess), s.Codecs...)
	require.NoError(t, err)
	sess.Values[storedKey{}] = data

	require.True(t, s.unchanged(sess))
	require.NotContains(t, values(sess), storedKey{})

	SetUserID(sess, "user-2")
	require.False(t, s.unchanged(sess))
}
