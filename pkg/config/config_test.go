package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/v1", cfg.APIPrefix)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "transcriptions", cfg.Queue.Name)
	assert.Equal(t, time.Hour, cfg.Queue.ResultRetention)
	assert.Equal(t, "whisperx", cfg.Engine.Backend)
	assert.True(t, cfg.Engine.EnableAlignment)
	assert.False(t, cfg.Engine.EnableDiarization)
	// 許可ホスト未設定はデフォルト拒否
	assert.Empty(t, cfg.Download.AllowedHosts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_PORT", "15432")
	t.Setenv("QUEUE_RESULT_RETENTION", "2h")
	t.Setenv("DOWNLOAD_ALLOWED_HOSTS", "cdn.example.com, *.blob.core.windows.net")
	t.Setenv("WHISPERX_ENABLE_DIARIZATION", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, 2*time.Hour, cfg.Queue.ResultRetention)
	assert.Equal(t, []string{"cdn.example.com", "*.blob.core.windows.net"}, cfg.Download.AllowedHosts)
	assert.True(t, cfg.Engine.EnableDiarization)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("QUEUE_TASK_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 30*time.Minute, cfg.Queue.TaskTimeout)
}
