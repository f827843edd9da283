package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 12

// dummyHash is compared against when a username does not exist so unknown
// and known usernames take the same time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("moard-dummy-password"), bcrypt.MinCost)

// User is a message-board account.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"password_hash"`
	Avatar       string             `bson:"avatar,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
}

// Users is the repository for the "users" collection.
type Users struct {
	coll *mongo.Collection
}

// NewUsers returns a repository backed by database.
func NewUsers(database *mongo.Database) *Users {
	return &Users{coll: database.Collection("users")}
}

// EnsureIndexes creates the unique username index.
func (u *Users) EnsureIndexes(ctx context.Context) error {
	_, err := u.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	})
	return err
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Create inserts a user with an already hashed password.
func (u *Users) Create(ctx context.Context, username, passwordHash string) (User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return User{}, errors.New("username is empty")
	}
	user := User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := u.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, fmt.Errorf("user %q: %w", username, ErrDuplicate)
		}
		return User{}, err
	}
	return user, nil
}

// FindByUsername looks a user up by login name.
func (u *Users) FindByUsername(ctx context.Context, username string) (User, error) {
	return u.findOne(ctx, bson.M{"username": normalizeUsername(username)})
}

// FindByID looks a user up by the hex object id stored in the session.
func (u *Users) FindByID(ctx context.Context, id string) (User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return u.findOne(ctx, bson.M{"_id": oid})
}

func (u *Users) findOne(ctx context.Context, filter bson.M) (User, error) {
	var user User
	err := u.coll.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate returns the user when password matches.
func (u *Users) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := u.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// SetAvatar records the stored upload filename for the user.
func (u *Users) SetAvatar(ctx context.Context, id, filename string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := u.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"avatar": filename}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
