package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// OutputDir is where rendered videos are written
	OutputDir string `yaml:"output_dir"`

	// AudioDir is where intermediate narration audio is written.
	// If empty, defaults to OutputDir/audio.
	AudioDir string `yaml:"audio_dir"`

	// RemotionDir is the directory containing the Remotion project entry point
	RemotionDir string `yaml:"remotion_dir"`

	// BaseURL is the externally reachable address of this server.
	// The renderer fetches narration audio over HTTP from here.
	BaseURL string `yaml:"base_url"`

	// ClaudePath is the path to the AI CLI binary (default: "claude")
	ClaudePath string `yaml:"claude_path"`

	// EdgeTTSPath is the path to the edge-tts binary (default: "edge-tts")
	EdgeTTSPath string `yaml:"edge_tts_path"`

	// NodePath is the path to the node binary (default: "node")
	NodePath string `yaml:"node_path"`

	// FFprobePath is the path to the ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// TTSVoice is the narration voice name (default: "en-US-GuyNeural")
	TTSVoice string `yaml:"tts_voice"`

	// LogLevel controls logging verbosity: debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// LogFormat selects the log output format: console or json
	LogFormat string `yaml:"log_format"`

	// Timeouts bound each external-process phase
	Timeouts Timeouts `yaml:"timeouts"`
}

// Timeouts holds the per-operation deadlines for external collaborator calls.
type Timeouts struct {
	// ContentGeneration bounds the AI CLI call (default 5m)
	ContentGeneration time.Duration `yaml:"content_generation"`

	// AudioPerStep bounds each narration synthesis call (default 1m)
	AudioPerStep time.Duration `yaml:"audio_per_step"`

	// Bundle bounds the Remotion bundling step (default 3m)
	Bundle time.Duration `yaml:"bundle"`

	// VideoRender bounds the Remotion render step (default 10m)
	VideoRender time.Duration `yaml:"video_render"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OutputDir:   "output",
		AudioDir:    "", // OutputDir/audio
		RemotionDir: "remotion",
		BaseURL:     "http://localhost:8001",
		ClaudePath:  "claude",
		EdgeTTSPath: "edge-tts",
		NodePath:    "node",
		FFprobePath: "ffprobe",
		TTSVoice:    "en-US-GuyNeural",
		LogLevel:    "info",
		LogFormat:   "console",
		Timeouts: Timeouts{
			ContentGeneration: 5 * time.Minute,
			AudioPerStep:      1 * time.Minute,
			Bundle:            3 * time.Minute,
			VideoRender:       10 * time.Minute,
		},
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Apply defaults for empty values
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.ClaudePath == "" {
		cfg.ClaudePath = "claude"
	}
	if cfg.EdgeTTSPath == "" {
		cfg.EdgeTTSPath = "edge-tts"
	}
	if cfg.NodePath == "" {
		cfg.NodePath = "node"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.TTSVoice == "" {
		cfg.TTSVoice = "en-US-GuyNeural"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8001"
	}
	if cfg.Timeouts.ContentGeneration <= 0 {
		cfg.Timeouts.ContentGeneration = 5 * time.Minute
	}
	if cfg.Timeouts.AudioPerStep <= 0 {
		cfg.Timeouts.AudioPerStep = 1 * time.Minute
	}
	if cfg.Timeouts.Bundle <= 0 {
		cfg.Timeouts.Bundle = 3 * time.Minute
	}
	if cfg.Timeouts.VideoRender <= 0 {
		cfg.Timeouts.VideoRender = 10 * time.Minute
	}

	return cfg, nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetAudioDir returns the directory for intermediate narration audio
func (c *Config) GetAudioDir() string {
	if c.AudioDir != "" {
		return c.AudioDir
	}
	return filepath.Join(c.OutputDir, "audio")
}
