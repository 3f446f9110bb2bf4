package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Generation sampling constants. These are deliberately not configurable;
// answers should stay short and consistent across deployments.
const (
	generationMaxTokens   = 200
	generationTemperature = 0.7
)

// Config contains configuration for the AI provider client
type Config struct {
	APIKey             string
	BaseURL            string // empty uses the provider default
	TranscriptionModel string
	GenerationModel    string
	TTSModel           string
	TTSVoice           string
	Timeout            time.Duration
	TempDir            string // empty uses os.TempDir()
}

// Client wraps the OpenAI API client with the configured models and timeout
type Client struct {
	api     *openai.Client
	config  Config
	logger  *slog.Logger
	tempDir string
}

// NewClient creates a new AI provider client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiConfig),
		config:  cfg,
		logger:  logger,
		tempDir: tempDir,
	}, nil
}

// Transcribe converts a flushed batch of audio chunks into recognized text.
// Chunks are concatenated in arrival order into a temporary file for the
// duration of the external call; the file is removed on every exit path.
func (c *Client) Transcribe(ctx context.Context, chunks [][]byte) (string, error) {
	if len(chunks) == 0 {
		return "", fmt.Errorf("empty audio batch")
	}

	tmpFile, err := os.CreateTemp(c.tempDir, "hexpert-audio-*.webm")
	if err != nil {
		return "", fmt.Errorf("failed to create temp audio file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil {
			// Cleanup failure is never fatal and never surfaced.
			c.logger.Warn("Failed to remove temp audio file",
				slog.String("path", tmpPath),
				slog.String("error", err.Error()),
			)
		}
	}()

	for _, chunk := range chunks {
		if _, err := tmpFile.Write(chunk); err != nil {
			tmpFile.Close()
			return "", fmt.Errorf("failed to write temp audio file: %w", err)
		}
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp audio file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.TranscriptionModel,
		FilePath: tmpPath,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	return resp.Text, nil
}

// Generate produces a completion for the given system instruction and user
// input, with fixed output length and sampling temperature.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.GenerationModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   generationMaxTokens,
		Temperature: generationTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Synthesize converts answer text to audio bytes
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(c.config.TTSModel),
		Input: text,
		Voice: openai.SpeechVoice(c.config.TTSVoice),
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis request failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}

	return audio, nil
}
