package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, 12*time.Hour, cfg.Session.TTL)
	require.Equal(t, 5, cfg.Login.MaxFails)
	require.Equal(t, "http", cfg.Storage.Backend)
	require.True(t, cfg.CSRF.HTTPOnly)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SONGBOOK_DATABASE_DSN", "postgres://u:p@localhost/songs")
	t.Setenv("SONGBOOK_HTTP_ADDR", ":9000")
	t.Setenv("SONGBOOK_LOGIN_BLOCK_FOR", "1m")
	t.Setenv("SONGBOOK_STORAGE_S3_BUCKET", "media")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@localhost/songs", cfg.Database.DSN)
	require.Equal(t, ":9000", cfg.HTTP.Addr)
	require.Equal(t, time.Minute, cfg.Login.BlockFor)
	require.Equal(t, "media", cfg.Storage.S3.Bucket)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songbook.yaml")
	body := `
http:
  addr: ":7000"
storage:
  backend: s3
  s3:
    bucket: covers
redis:
  addr: localhost:6379
  ttl: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.HTTP.Addr)
	require.Equal(t, "s3", cfg.Storage.Backend)
	require.Equal(t, "covers", cfg.Storage.S3.Bucket)
	require.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	require.Equal(t, "us-east-1", cfg.Storage.S3.Region)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateServe(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Error(t, cfg.ValidateServe())

	cfg.Database.DSN = "postgres://localhost/songs"
	cfg.Session.SignKey = "0123456789abcdef0123456789abcdef"
	cfg.Storage.BaseURL = "https://storage.example.com/zone"
	require.NoError(t, cfg.ValidateServe())

	cfg.Storage.Backend = "ftp"
	require.ErrorContains(t, cfg.ValidateServe(), "ftp")
}
