package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, UsersSourceCSV, cfg.UsersSource)
	assert.Equal(t, []string{"TescilTarihi", "SaticiSicilNo", "UrunAdi", "Tutar", "Miktar"}, cfg.RequiredFields)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, int64(32<<20), cfg.UploadMaxBytes)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("USERS_SOURCE", " Postgres ")
	t.Setenv("REQUIRED_FIELDS", " TescilTarihi , ,Tutar")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PG_MAX_CONNS", "8")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, UsersSourcePostgres, cfg.UsersSource)
	assert.Equal(t, []string{"TescilTarihi", "Tutar"}, cfg.RequiredFields)
	assert.Equal(t, "redis:6379", cfg.Redis().Addr)
	assert.Equal(t, 3, cfg.Redis().DB)
	assert.Equal(t, int32(8), cfg.Postgres().MaxConns)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Run("unknown users source", func(t *testing.T) {
		setRequired(t)
		t.Setenv("USERS_SOURCE", "ldap")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
	t.Run("missing secrets", func(t *testing.T) {
		t.Setenv("SESSION_SECRET", "")
		t.Setenv("CSRF_SECRET", "")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
	t.Run("upload limit", func(t *testing.T) {
		setRequired(t)
		t.Setenv("UPLOAD_MAX_BYTES", "0")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}
