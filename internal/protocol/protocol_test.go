package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestParseAudioStreamEvent(t *testing.T) {
	chunk := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00}
	raw := fmt.Sprintf(`{"event":"audio-stream","data":{"audio":"%s"}}`,
		base64.StdEncoding.EncodeToString(chunk))

	event, err := ParseClientEvent([]byte(raw))
	if err != nil {
		t.Fatalf("ParseClientEvent failed: %v", err)
	}

	if event.Event != EventAudioStream {
		t.Errorf("Expected event %s, got %s", EventAudioStream, event.Event)
	}
	if !bytes.Equal(event.Chunk, chunk) {
		t.Errorf("Decoded chunk mismatch: got %v", event.Chunk)
	}
}

func TestParseWakeWordEvent(t *testing.T) {
	event, err := ParseClientEvent([]byte(`{"event":"wake-word-detected"}`))
	if err != nil {
		t.Fatalf("ParseClientEvent failed: %v", err)
	}

	if event.Event != EventWakeWord {
		t.Errorf("Expected event %s, got %s", EventWakeWord, event.Event)
	}
	if event.Chunk != nil {
		t.Error("Wake word event should carry no chunk")
	}
}

func TestParseInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "this is not json"},
		{"unknown event", `{"event":"telemetry","data":{}}`},
		{"bad base64", `{"event":"audio-stream","data":{"audio":"!!not-base64!!"}}`},
		{"missing data", `{"event":"audio-stream"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClientEvent([]byte(tt.raw)); err == nil {
				t.Errorf("Expected error for %q, got nil", tt.raw)
			}
		})
	}
}

func TestServerEventEncoding(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("transcription", func(t *testing.T) {
		msg, err := NewTranscriptionMessage("how do curses work", ts)
		if err != nil {
			t.Fatalf("NewTranscriptionMessage failed: %v", err)
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("Envelope did not round-trip: %v", err)
		}
		if env.Event != EventTranscription {
			t.Errorf("Expected event %s, got %s", EventTranscription, env.Event)
		}

		var payload TranscriptionPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("Payload did not round-trip: %v", err)
		}
		if payload.Text != "how do curses work" {
			t.Errorf("Unexpected text %q", payload.Text)
		}
		if !payload.Timestamp.Equal(ts) {
			t.Errorf("Unexpected timestamp %v", payload.Timestamp)
		}
	})

	t.Run("ai-response", func(t *testing.T) {
		msg, err := NewAIResponseMessage("question", "answer", ts)
		if err != nil {
			t.Fatalf("NewAIResponseMessage failed: %v", err)
		}

		var env Envelope
		json.Unmarshal(msg, &env)
		var payload AIResponsePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("Payload did not round-trip: %v", err)
		}
		if payload.Question != "question" || payload.Answer != "answer" {
			t.Errorf("Unexpected payload %+v", payload)
		}
	})

	t.Run("tts-audio", func(t *testing.T) {
		audio := []byte{0xff, 0xfb, 0x90}
		msg, err := NewTTSAudioMessage(audio, ts)
		if err != nil {
			t.Fatalf("NewTTSAudioMessage failed: %v", err)
		}

		var env Envelope
		json.Unmarshal(msg, &env)
		var payload TTSAudioPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("Payload did not round-trip: %v", err)
		}

		decoded, err := base64.StdEncoding.DecodeString(payload.Audio)
		if err != nil {
			t.Fatalf("Audio is not valid base64: %v", err)
		}
		if !bytes.Equal(decoded, audio) {
			t.Errorf("Audio bytes did not survive the round trip")
		}
	})

	t.Run("error", func(t *testing.T) {
		msg, err := NewErrorMessage("something broke")
		if err != nil {
			t.Fatalf("NewErrorMessage failed: %v", err)
		}

		var env Envelope
		json.Unmarshal(msg, &env)
		if env.Event != EventError {
			t.Errorf("Expected event %s, got %s", EventError, env.Event)
		}

		var payload ErrorPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("Payload did not round-trip: %v", err)
		}
		if payload.Message != "something broke" {
			t.Errorf("Unexpected message %q", payload.Message)
		}
	})
}
