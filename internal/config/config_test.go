package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAMLWithEnvOverlay(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
local:
  driver: sqlite
sqlite:
  path: /tmp/device.db
quiz:
  fallback_timeout: 3s
  first_completion_bonus: 5
`)
	t.Setenv("PORT", "9100")
	t.Setenv("QUIZ_NOTICE_DURATION", "1500ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Local.Driver)
	require.Equal(t, "/tmp/device.db", cfg.SQLite.Path)
	require.Equal(t, 3*time.Second, TTLDuration(cfg.Quiz.FallbackTimeout, 0))
	require.Equal(t, 1500*time.Millisecond, TTLDuration(cfg.Quiz.NoticeDuration, 0))
	require.Equal(t, 5, cfg.Quiz.FirstCompletionBonus)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "8081", cfg.Account.Port)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOCAL_DRIVER", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "memory", cfg.Local.Driver)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestValidateAggregatesProblems(t *testing.T) {
	path := writeConfig(t, `
log:
  level: chatty
  format: xml
local:
  driver: redis
quiz:
  fallback_timeout: soon
  first_completion_bonus: -1
`)
	_, err := Load(path)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 5)
	require.ErrorContains(t, err, "redis.addr")
	require.ErrorContains(t, err, "quiz.fallback_timeout")
}

func TestTTLDuration(t *testing.T) {
	require.Equal(t, time.Minute, TTLDuration("", time.Minute))
	require.Equal(t, time.Minute, TTLDuration("garbage", time.Minute))
	require.Equal(t, 2*time.Second, TTLDuration("2s", time.Minute))
}
