package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lookup(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func validEnv() map[string]string {
	return map[string]string{
		"MONGO_URI":      "mongodb://localhost:27017/moard",
		"MONGO_STORE":    "mongodb://localhost:27017/moard-sessions",
		"SESSION_SECRET": strings.Repeat("s", 32),
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookup(validEnv()))
	require.NoError(t, err)

	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, ":3000", cfg.Addr())
	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, "console", cfg.LogFormat)
	require.Equal(t, "views", cfg.ViewsDir)
	require.Equal(t, "public", cfg.PublicDir)
	require.Equal(t, int64(5<<20), cfg.UploadMaxBytes)
	require.True(t, cfg.TrustProxy)
	require.Equal(t, 14*24*time.Hour, cfg.SessionTTL)
	require.Equal(t, 10, cfg.LoginRate)
	require.False(t, cfg.S3.Enabled())
}

func TestFromEnv_ProductionDefaultsToJSONLogs(t *testing.T) {
	env := validEnv()
	env["MOARD_ENV"] = "production"
	env["PORT"] = "8080"

	cfg, err := FromEnv(lookup(env))
	require.NoError(t, err)
	require.True(t, cfg.Production())
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, ":8080", cfg.Addr())
}

func TestFromEnv_MissingRequired(t *testing.T) {
	_, err := FromEnv(lookup(map[string]string{}))
	require.Error(t, err)
	for _, key := range []string{"MONGO_URI", "MONGO_STORE", "SESSION_SECRET"} {
		require.Contains(t, err.Error(), key)
	}
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad mongo scheme", "MONGO_URI", "postgres://localhost/db"},
		{"short secret", "SESSION_SECRET", "short"},
		{"port not a number", "PORT", "http"},
		{"port out of range", "PORT", "70000"},
		{"unknown env", "MOARD_ENV", "qa"},
		{"bad log level", "MOARD_LOG_LEVEL", "verbose"},
		{"bad upload limit", "MOARD_UPLOAD_MAX_BYTES", "-1"},
		{"bad ttl", "MOARD_SESSION_TTL", "two weeks"},
		{"bad trust proxy", "MOARD_TRUST_PROXY", "maybe"},
		{"negative login rate", "MOARD_LOGIN_RATE", "-1"},
		{"login rate not a number", "MOARD_LOGIN_RATE", "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := validEnv()
			env[tt.key] = tt.value
			_, err := FromEnv(lookup(env))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestFromEnv_LoginRateZeroDisablesLimiter(t *testing.T) {
	env := validEnv()
	env["MOARD_LOGIN_RATE"] = "0"

	cfg, err := FromEnv(lookup(env))
	require.NoError(t, err)
	require.Equal(t, 0, cfg.LoginRate)
}

func TestFromEnv_PartialS3Config(t *testing.T) {
	env := validEnv()
	env["MOARD_S3_ENDPOINT"] = "http://minio:9000"

	_, err := FromEnv(lookup(env))
	require.Error(t, err)
	require.Contains(t, err.Error(), "MOARD_S3_BUCKET")

	env["MOARD_S3_ACCESS_KEY"] = "minio"
	env["MOARD_S3_SECRET_KEY"] = "minio123"
	env["MOARD_S3_BUCKET"] = "moard"
	cfg, err := FromEnv(lookup(env))
	require.NoError(t, err)
	require.True(t, cfg.S3.Enabled())
}

func TestValidator_CollectsAllErrors(t *testing.T) {
	v := NewValidator()
	v.Required("A", "")
	v.Port("B", "0")
	require.True(t, v.HasErrors())
	require.Len(t, v.Errors(), 2)
	require.Contains(t, v.Err().Error(), "2 error(s)")
}
