// Package config loads and validates Moard's runtime configuration from the
// process environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// S3Config selects the object-storage upload backend. Zero value means disk.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Enabled reports whether uploads go to the bucket instead of the public dir.
func (s S3Config) Enabled() bool {
	return s.Endpoint != ""
}

// Config holds everything the server needs at startup.
type Config struct {
	MongoURI      string
	MongoStoreURI string
	SessionSecret string
	Port          int

	Env       string
	LogLevel  string
	LogFormat string

	ViewsDir       string
	PublicDir      string
	UploadMaxBytes int64
	TrustProxy     bool
	SessionTTL     time.Duration
	LoginRate      int

	S3 S3Config
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Production reports whether the app runs in production mode.
func (c Config) Production() bool {
	return c.Env == EnvProduction
}

// Load reads an optional .env file from the working directory and then the
// environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Tests pass a map lookup.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	v := NewValidator()
	cfg := Config{
		MongoURI:      getenv("MONGO_URI"),
		MongoStoreURI: getenv("MONGO_STORE"),
		SessionSecret: getenv("SESSION_SECRET"),
		Env:           get("MOARD_ENV", EnvDevelopment),
		LogLevel:      get("MOARD_LOG_LEVEL", "info"),
		ViewsDir:      get("MOARD_VIEWS_DIR", "views"),
		PublicDir:     get("MOARD_PUBLIC_DIR", "public"),
		S3: S3Config{
			Endpoint:  getenv("MOARD_S3_ENDPOINT"),
			AccessKey: getenv("MOARD_S3_ACCESS_KEY"),
			SecretKey: getenv("MOARD_S3_SECRET_KEY"),
			Bucket:    getenv("MOARD_S3_BUCKET"),
		},
	}

	v.Required("MONGO_URI", cfg.MongoURI)
	v.MongoURI("MONGO_URI", cfg.MongoURI)
	v.Required("MONGO_STORE", cfg.MongoStoreURI)
	v.MongoURI("MONGO_STORE", cfg.MongoStoreURI)
	v.Required("SESSION_SECRET", cfg.SessionSecret)
	v.MinLength("SESSION_SECRET", cfg.SessionSecret, 32)

	cfg.Port = v.Port("PORT", get("PORT", "3000"))

	v.Enum("MOARD_ENV", cfg.Env, []string{EnvDevelopment, "staging", EnvProduction})
	v.Enum("MOARD_LOG_LEVEL", cfg.LogLevel, []string{"debug", "info", "warn", "error"})

	defFormat := "console"
	if cfg.Production() {
		defFormat = "json"
	}
	cfg.LogFormat = get("MOARD_LOG_FORMAT", defFormat)
	v.Enum("MOARD_LOG_FORMAT", cfg.LogFormat, []string{"console", "json"})

	cfg.UploadMaxBytes = v.PositiveInt("MOARD_UPLOAD_MAX_BYTES", get("MOARD_UPLOAD_MAX_BYTES", "5242880"))
	cfg.TrustProxy = v.Bool("MOARD_TRUST_PROXY", get("MOARD_TRUST_PROXY", "true"))
	cfg.SessionTTL = v.Duration("MOARD_SESSION_TTL", get("MOARD_SESSION_TTL", "336h"))
	// 0 turns the login limiter off.
	cfg.LoginRate = int(v.NonNegativeInt("MOARD_LOGIN_RATE", get("MOARD_LOGIN_RATE", "10")))

	s3 := cfg.S3
	if s3.Endpoint != "" || s3.AccessKey != "" || s3.SecretKey != "" || s3.Bucket != "" {
		v.Required("MOARD_S3_ENDPOINT", s3.Endpoint)
		v.Required("MOARD_S3_ACCESS_KEY", s3.AccessKey)
		v.Required("MOARD_S3_SECRET_KEY", s3.SecretKey)
		v.Required("MOARD_S3_BUCKET", s3.Bucket)
	}

	if err := v.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
