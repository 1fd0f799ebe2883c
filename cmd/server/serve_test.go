package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/songbook/internal/config"
	"github.com/and161185/songbook/internal/pagecache"
	"github.com/and161185/songbook/internal/upload"
)

func TestNewStore(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Storage.BaseURL = "https://storage.example.com/zone"
	st, err := newStore(cfg)
	require.NoError(t, err)
	require.IsType(t, &upload.HTTPStore{}, st)

	cfg.Storage.Backend = "s3"
	cfg.Storage.S3.Bucket = "media"
	st, err = newStore(cfg)
	require.NoError(t, err)
	require.IsType(t, &upload.S3Store{}, st)

	cfg.Storage.Backend = "ftp"
	_, err = newStore(cfg)
	require.Error(t, err)
}

func TestNewCache(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	c, closeFn, err := newCache(context.Background(), cfg, log)
	require.NoError(t, err)
	require.IsType(t, pagecache.Nop{}, c)
	closeFn()

	mr := miniredis.RunT(t)
	cfg.Redis.Addr = mr.Addr()
	c, closeFn, err = newCache(context.Background(), cfg, log)
	require.NoError(t, err)
	require.IsType(t, &pagecache.Redis{}, c)
	closeFn()
}

func TestNewLogger_BadLevel(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Log.Level = "loud"
	_, err = newLogger(cfg)
	require.Error(t, err)
}
