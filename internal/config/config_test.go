package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, "claude", cfg.ClaudePath)
	assert.Equal(t, "en-US-GuyNeural", cfg.TTSVoice)
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.ContentGeneration)
	assert.Equal(t, time.Minute, cfg.Timeouts.AudioPerStep)
	assert.Equal(t, 10*time.Minute, cfg.Timeouts.VideoRender)
}

func TestLoadAppliesDefaultsForEmptyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codereel.yaml")
	content := `
output_dir: /data/videos
tts_voice: en-GB-RyanNeural
timeouts:
  audio_per_step: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/videos", cfg.OutputDir)
	assert.Equal(t, "en-GB-RyanNeural", cfg.TTSVoice)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.AudioPerStep)
	// Unset values fall back to defaults
	assert.Equal(t, "edge-tts", cfg.EdgeTTSPath)
	assert.Equal(t, 3*time.Minute, cfg.Timeouts.Bundle)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestGetAudioDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("output", "audio"), cfg.GetAudioDir())

	cfg.AudioDir = "/tmp/audio"
	assert.Equal(t, "/tmp/audio", cfg.GetAudioDir())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "codereel.yaml")

	cfg := DefaultConfig()
	cfg.OutputDir = "/data/out"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/out", loaded.OutputDir)
	assert.Equal(t, cfg.Timeouts, loaded.Timeouts)
}
