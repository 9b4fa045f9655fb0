package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with every config key unset.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range append(keys, "CONFIG_FILE") {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, ExtractorYtdlp, cfg.Extractor)
	assert.Equal(t, time.Hour, cfg.JobTTL)
}

func TestLoadConfig_Env(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EXTRACTOR", "Direct")
	t.Setenv("YTDLP_INSTALL", "true")
	t.Setenv("JOB_TTL", "0")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, ExtractorDirect, cfg.Extractor)
	assert.True(t, cfg.YtdlpInstall)
	assert.Zero(t, cfg.JobTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "mediagrab.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "7000"
extractor = "youtube"
merge_format = "mkv"
job_ttl = "2h"
ytdlp_install = true
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Port, "env wins over file")
	assert.Equal(t, ExtractorYoutube, cfg.Extractor)
	assert.Equal(t, "mkv", cfg.MergeFormat)
	assert.Equal(t, 2*time.Hour, cfg.JobTTL)
	assert.True(t, cfg.YtdlpInstall)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MERGE_FORMAT=webm\n"), 0o644))
	// godotenv only sets unset variables; clear the empty one isolate added.
	require.NoError(t, os.Unsetenv("MERGE_FORMAT"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "webm", cfg.MergeFormat)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad extractor", "EXTRACTOR", "ffmpeg"},
		{"bad bool", "YTDLP_INSTALL", "maybe"},
		{"bad duration", "JOB_TTL", "soon"},
		{"negative ttl", "JOB_TTL", "-1h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	isolate(t)
	t.Setenv("CONFIG_FILE", "/nonexistent/mediagrab.toml")
	_, err := LoadConfig()
	assert.Error(t, err)
}
