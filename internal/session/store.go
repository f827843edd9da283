// Package session persists gorilla/sessions sessions in MongoDB.
//
// The browser only ever holds a signed and encrypted session id in the
// cookie; the values live in the "sessions" collection, which MongoDB
// expires through a TTL index on the "expires" field.
package session

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "mid"
	// Collection holds one document per persisted session.
	Collection = "sessions"
	// DefaultTTL matches the usual two-week expiry of database session stores.
	DefaultTTL = 14 * 24 * time.Hour
)

// storedKey holds the encoded values a session was loaded with, so Save can
// tell whether anything changed. It is never written to the database.
type storedKey struct{}

type document struct {
	ID      string    `bson:"_id"`
	Data    string    `bson:"session"`
	Expires time.Time `bson:"expires"`
}

// Store is a sessions.Store backed by a MongoDB collection.
type Store struct {
	coll    *mongo.Collection
	Codecs  []securecookie.Codec
	Options *sessions.Options

	onError func(error)
	now     func() time.Time
}

var _ sessions.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the cookie MaxAge and the stored expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.Options.MaxAge = int(ttl.Seconds())
	}
}

// WithErrorHandler is called for every database failure the store hits.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onError = fn }
}

// NewStore returns a store writing to the sessions collection of database.
// keyPairs are securecookie hash/block key pairs; see KeyPairs.
func NewStore(database *mongo.Database, keyPairs [][]byte, opts ...Option) *Store {
	s := &Store{
		coll:   database.Collection(Collection),
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   int(DefaultTTL.Seconds()),
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		onError: func(error) {},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.applyCodecLimits()
	return s
}

func (s *Store) applyCodecLimits() {
	for _, c := range s.Codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			// Expiry is enforced by the stored "expires" field. A touched
			// session keeps its older encoding, so the codec timestamp must
			// not expire it first.
			sc.MaxAge(0)
			// Values are stored server side, the browser cookie size limit
			// does not apply to them.
			sc.MaxLength(0)
		}
	}
}

// EnsureIndexes creates the TTL index that removes expired sessions.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_ttl"),
	})
	if err != nil {
		s.onError(err)
		return fmt.Errorf("session indexes: %w", err)
	}
	return nil
}

// Get returns the session cached in the request registry, loading it on
// first use.
func (s *Store) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie, or returns a fresh
// one. A missing, forged or expired cookie yields a new session without
// error; a database failure yields a new session and the error.
func (s *Store) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.Codecs...); err != nil {
		return session, nil
	}

	found, err := s.load(r.Context(), session, id)
	if err != nil {
		s.onError(err)
		return session, err
	}
	if found {
		session.ID = id
		session.IsNew = false
	}
	return session, nil
}

// Save persists the session and writes the cookie.
//
// A new session without values is neither stored nor sent. A loaded
// session whose values are unchanged only has its expiry refreshed. A
// negative MaxAge deletes the stored session and expires the cookie.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.delete(r.Context(), session.ID); err != nil {
				s.onError(err)
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.IsNew && len(session.Values) == 0 {
		return nil
	}

	if session.ID == "" {
		session.ID = newID()
	}
	touched := false
	if !session.IsNew && s.unchanged(session) {
		var err error
		if touched, err = s.touch(r.Context(), session); err != nil {
			s.onError(err)
			return err
		}
	}
	if !touched {
		if err := s.save(r.Context(), session); err != nil {
			s.onError(err)
			return err
		}
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Regenerate drops the stored session and gives it a new id on the next
// Save, keeping its values. Call after a privilege change such as login.
func (s *Store) Regenerate(r *http.Request, session *sessions.Session) error {
	if session.ID != "" {
		if err := s.delete(r.Context(), session.ID); err != nil {
			s.onError(err)
			return err
		}
	}
	session.ID = ""
	session.IsNew = true
	delete(session.Values, storedKey{})
	return nil
}

func (s *Store) ttl(session *sessions.Session) time.Duration {
	if session.Options.MaxAge > 0 {
		return time.Duration(session.Options.MaxAge) * time.Second
	}
	return DefaultTTL
}

func (s *Store) load(ctx context.Context, session *sessions.Session, id string) (bool, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	// The TTL monitor runs about once a minute; do not resurrect sessions
	// it has not removed yet.
	if !doc.Expires.After(s.now()) {
		return false, nil
	}
	if err := securecookie.DecodeMulti(session.Name(), doc.Data, &session.Values, s.Codecs...); err != nil {
		return false, nil
	}
	session.Values[storedKey{}] = doc.Data
	return true, nil
}

// values returns the session values without the stored encoding marker.
func values(session *sessions.Session) map[interface{}]interface{} {
	out := make(map[interface{}]interface{}, len(session.Values))
	for k, v := range session.Values {
		if _, ok := k.(storedKey); !ok {
			out[k] = v
		}
	}
	return out
}

// unchanged reports whether the values still match what was loaded.
func (s *Store) unchanged(session *sessions.Session) bool {
	data, ok := session.Values[storedKey{}].(string)
	if !ok {
		return false
	}
	stored := make(map[interface{}]interface{})
	if err := securecookie.DecodeMulti(session.Name(), data, &stored, s.Codecs...); err != nil {
		return false
	}
	return reflect.DeepEqual(stored, values(session))
}

// touch refreshes the expiry of an unchanged session. It reports false
// when the document is gone, so the caller writes it again.
func (s *Store) touch(ctx context.Context, session *sessions.Session) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": session.ID},
		bson.M{"$set": bson.M{"expires": s.now().Add(s.ttl(session)).UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (s *Store) save(ctx context.Context, session *sessions.Session) error {
	data, err := securecookie.EncodeMulti(session.Name(), values(session), s.Codecs...)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	doc := document{
		ID:      session.ID,
		Data:    data,
		Expires: s.now().Add(s.ttl(session)).UTC(),
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	session.Values[storedKey{}] = data
	return nil
}

func (s *Store) delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func newID() string {
	return strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
}
