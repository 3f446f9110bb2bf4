package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Client-to-server event names
const (
	EventAudioStream = "audio-stream"
	EventWakeWord    = "wake-word-detected"
)

// Server-to-client event names
const (
	EventTranscription = "transcription"
	EventAIResponse    = "ai-response"
	EventTTSAudio      = "tts-audio"
	EventError         = "error"
)

// Envelope is the wire framing for every websocket text message:
// an event name plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AudioStreamPayload carries one base64-encoded audio chunk
type AudioStreamPayload struct {
	Audio string `json:"audio"`
}

// TranscriptionPayload carries recognized text for one flushed batch
type TranscriptionPayload struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// AIResponsePayload carries the answer produced for a transcript
type AIResponsePayload struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// TTSAudioPayload carries synthesized speech as base64 audio bytes
type TTSAudioPayload struct {
	Audio     string    `json:"audio"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload carries a user-visible failure message
type ErrorPayload struct {
	Message string `json:"message"`
}

// ClientEvent is a decoded client-to-server event. Chunk is only populated
// for audio-stream events.
type ClientEvent struct {
	Event string
	Chunk []byte
}

// ParseClientEvent decodes and validates one client text message.
// Audio payloads are base64-decoded; a decode failure is reported so the
// caller can discard the chunk silently per the malformed-input policy.
func ParseClientEvent(data []byte) (*ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse event envelope: %w", err)
	}

	switch env.Event {
	case EventAudioStream:
		var payload AudioStreamPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("failed to parse audio-stream payload: %w", err)
		}
		chunk, err := base64.StdEncoding.DecodeString(payload.Audio)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio payload: %w", err)
		}
		return &ClientEvent{Event: EventAudioStream, Chunk: chunk}, nil

	case EventWakeWord:
		return &ClientEvent{Event: EventWakeWord}, nil

	default:
		return nil, fmt.Errorf("unknown event '%s'", env.Event)
	}
}

// NewTranscriptionMessage builds a serialized transcription event
func NewTranscriptionMessage(text string, timestamp time.Time) ([]byte, error) {
	return encode(EventTranscription, TranscriptionPayload{
		Text:      text,
		Timestamp: timestamp,
	})
}

// NewAIResponseMessage builds a serialized ai-response event
func NewAIResponseMessage(question, answer string, timestamp time.Time) ([]byte, error) {
	return encode(EventAIResponse, AIResponsePayload{
		Question:  question,
		Answer:    answer,
		Timestamp: timestamp,
	})
}

// NewTTSAudioMessage builds a serialized tts-audio event from raw audio bytes
func NewTTSAudioMessage(audio []byte, timestamp time.Time) ([]byte, error) {
	return encode(EventTTSAudio, TTSAudioPayload{
		Audio:     base64.StdEncoding.EncodeToString(audio),
		Timestamp: timestamp,
	})
}

// NewErrorMessage builds a serialized error event
func NewErrorMessage(message string) ([]byte, error) {
	return encode(EventError, ErrorPayload{Message: message})
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	msg, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", event, err)
	}

	return msg, nil
}
