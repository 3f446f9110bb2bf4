package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP/WebSocket server configuration
type ServerConfig struct {
	Port      int    `yaml:"port"`
	Address   string `yaml:"address"`
	StaticDir string `yaml:"static_dir"`
}

// AudioConfig contains audio buffering parameters
type AudioConfig struct {
	FlushThreshold int     `yaml:"flush_threshold"` // chunks per transcription batch
	ChunkDuration  float64 `yaml:"chunk_duration"`  // seconds, informational (client-controlled)
	SessionTimeout int     `yaml:"session_timeout"` // seconds of inactivity before cleanup
}

// OpenAIConfig contains configuration for the external AI provider
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"` // empty uses the official API; set for a local mock
	TranscriptionModel string `yaml:"transcription_model"`
	GenerationModel    string `yaml:"generation_model"`
	TTSModel           string `yaml:"tts_model"`
	TTSVoice           string `yaml:"tts_voice"`
	RequestTimeout     int    `yaml:"request_timeout"` // seconds, applies to every external call
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no config file is provided.
// Every field has a working default except the OpenAI API key, which must
// come from the environment or the config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      3000,
			Address:   "0.0.0.0",
			StaticDir: "web",
		},
		Audio: AudioConfig{
			FlushThreshold: 20,
			ChunkDuration:  0.1,
			SessionTimeout: 300,
		},
		OpenAI: OpenAIConfig{
			TranscriptionModel: "whisper-1",
			GenerationModel:    "gpt-4o-mini",
			TTSModel:           "tts-1",
			TTSVoice:           "alloy",
			RequestTimeout:     30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file, applies environment
// overrides, and validates the result. An empty path uses defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv overlays environment variables onto the loaded configuration.
// The API key is deliberately env-first so it never has to live in a file.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("HEXPERT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("HEXPERT_OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("HEXPERT_TRANSCRIPTION_MODEL"); v != "" {
		c.OpenAI.TranscriptionModel = v
	}
	if v := os.Getenv("HEXPERT_GENERATION_MODEL"); v != "" {
		c.OpenAI.GenerationModel = v
	}
	if v := os.Getenv("HEXPERT_TTS_MODEL"); v != "" {
		c.OpenAI.TTSModel = v
	}
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.OpenAI.Validate(); err != nil {
		return fmt.Errorf("openai config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.StaticDir == "" {
		return fmt.Errorf("static_dir cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.FlushThreshold < 1 {
		return fmt.Errorf("flush_threshold must be at least 1 chunk, got %d", a.FlushThreshold)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	if a.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", a.SessionTimeout)
	}

	return nil
}

// Validate validates OpenAI configuration
func (o *OpenAIConfig) Validate() error {
	if o.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set OPENAI_API_KEY)")
	}

	if o.TranscriptionModel == "" {
		return fmt.Errorf("transcription_model cannot be empty")
	}

	if o.GenerationModel == "" {
		return fmt.Errorf("generation_model cannot be empty")
	}

	if o.TTSModel == "" {
		return fmt.Errorf("tts_model cannot be empty")
	}

	if o.TTSVoice == "" {
		return fmt.Errorf("tts_voice cannot be empty")
	}

	if o.RequestTimeout < 1 {
		return fmt.Errorf("request_timeout must be at least 1 second, got %d", o.RequestTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true}
	if !validOutputs[l.Output] {
		return fmt.Errorf("output must be 'stdout' or 'stderr', got '%s'", l.Output)
	}

	return nil
}

// GetSessionTimeoutDuration returns the session timeout as a time.Duration
func (a *AudioConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(a.SessionTimeout) * time.Second
}

// GetRequestTimeoutDuration returns the external request timeout as a time.Duration
func (o *OpenAIConfig) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(o.RequestTimeout) * time.Second
}
