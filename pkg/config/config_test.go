package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg := LoadFromEnv()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, int64(8<<20), cfg.Upload.MaxChunkSize)
	assert.Equal(t, time.Hour, cfg.Upload.IdleTimeout)
	assert.True(t, cfg.Upload.KeepRejected)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoadFromEnv_ChunkSizes(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int64
	}{
		{name: "plain bytes", value: "1048576", want: 1 << 20},
		{name: "binary suffix", value: "16MiB", want: 16 << 20},
		{name: "short suffix", value: "512k", want: 512 << 10},
		{name: "garbage falls back", value: "lots", want: 8 << 20},
		{name: "zero falls back", value: "0", want: 8 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("UPLOAD_MAX_CHUNK_SIZE", tt.value)
			assert.Equal(t, tt.want, LoadFromEnv().Upload.MaxChunkSize)
		})
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	t.Setenv("SERVER_PORT", "6000")
	t.Setenv("STORAGE_TYPE", "local")

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
storage:
  type: s3
  bucket: finalized
upload:
  max_sessions: 42
  idle_timeout: 15m
  keep_rejected: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Server.Port, "keys absent from the file keep env values")
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "finalized", cfg.Storage.Bucket)
	assert.Equal(t, 42, cfg.Upload.MaxSessions)
	assert.Equal(t, 15*time.Minute, cfg.Upload.IdleTimeout)
	assert.False(t, cfg.Upload.KeepRejected)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("upload: [not, a, map"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	zero := filepath.Join(dir, "zero.yaml")
	require.NoError(t, os.WriteFile(zero, []byte("upload:\n  max_chunk_size: 0\n"), 0644))
	_, err = Load(zero)
	assert.Error(t, err)
}

func TestLoad_NoPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestConnectionStrings(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", db.DatabaseURL())

	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.RedisAddr())
}
