package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/charlie-brunold/Hexpert/internal/config"
	"github.com/charlie-brunold/Hexpert/internal/metrics"
	"github.com/charlie-brunold/Hexpert/internal/pipeline"
	"github.com/charlie-brunold/Hexpert/internal/protocol"
	"github.com/charlie-brunold/Hexpert/internal/session"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, chunks [][]byte) (string, error) {
	return f.text, f.err
}

type fakeAnswerer struct {
	answer string
}

func (f *fakeAnswerer) Answer(ctx context.Context, question string) string {
	return f.answer
}

type fakeSynthesizer struct {
	audio []byte
	err   error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a full server wired to fake AI collaborators and
// returns it alongside an httptest server hosting its handler.
func newTestServer(t *testing.T, tr *fakeTranscriber, sy *fakeSynthesizer) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.StaticDir = t.TempDir()
	logger := testLogger()

	registry := session.NewRegistry(logger, time.Minute)
	promReg := prometheus.NewRegistry()
	m := metrics.NewMetrics(promReg)

	s := NewServer(cfg, logger, registry, m, promReg)

	d := pipeline.NewDispatcher(registry, tr, &fakeAnswerer{answer: "a fixed answer"},
		sy, s, m, logger, pipeline.Config{FlushThreshold: 20})
	s.SetDispatcher(d)

	ts := httptest.NewServer(s.server.Handler)
	t.Cleanup(ts.Close)

	return s, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendAudioEvent(t *testing.T, conn *websocket.Conn, chunk []byte) {
	t.Helper()

	msg := fmt.Sprintf(`{"event":"audio-stream","data":{"audio":"%s"}}`,
		base64.StdEncoding.EncodeToString(chunk))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("Failed to send audio event: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read server event: %v", err)
	}

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Server sent invalid envelope: %v", err)
	}
	return env.Event, env.Data
}

func TestWebSocketRoundTrip(t *testing.T) {
	tr := &fakeTranscriber{text: "how do curses work"}
	sy := &fakeSynthesizer{audio: []byte("voice")}
	_, ts := newTestServer(t, tr, sy)

	conn := dialWS(t, ts)

	for i := 0; i < 20; i++ {
		sendAudioEvent(t, conn, []byte{byte(i + 1)})
	}

	// Events arrive in pipeline order: transcript, answer, then audio
	event, data := readEvent(t, conn)
	if event != protocol.EventTranscription {
		t.Fatalf("Expected transcription first, got %s", event)
	}
	var transcript protocol.TranscriptionPayload
	json.Unmarshal(data, &transcript)
	if transcript.Text != "how do curses work" {
		t.Errorf("Unexpected transcript %q", transcript.Text)
	}

	event, data = readEvent(t, conn)
	if event != protocol.EventAIResponse {
		t.Fatalf("Expected ai-response second, got %s", event)
	}
	var response protocol.AIResponsePayload
	json.Unmarshal(data, &response)
	if response.Question != "how do curses work" || response.Answer != "a fixed answer" {
		t.Errorf("Unexpected response payload %+v", response)
	}

	event, data = readEvent(t, conn)
	if event != protocol.EventTTSAudio {
		t.Fatalf("Expected tts-audio third, got %s", event)
	}
	var tts protocol.TTSAudioPayload
	json.Unmarshal(data, &tts)
	if decoded, _ := base64.StdEncoding.DecodeString(tts.Audio); string(decoded) != "voice" {
		t.Errorf("Unexpected synthesized audio %q", tts.Audio)
	}
}

func TestWebSocketBinaryFrames(t *testing.T) {
	tr := &fakeTranscriber{text: "how does combat work"}
	sy := &fakeSynthesizer{audio: []byte("voice")}
	_, ts := newTestServer(t, tr, sy)

	conn := dialWS(t, ts)

	for i := 0; i < 20; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{byte(i + 1)}); err != nil {
			t.Fatalf("Failed to send binary chunk: %v", err)
		}
	}

	event, _ := readEvent(t, conn)
	if event != protocol.EventTranscription {
		t.Fatalf("Expected transcription event, got %s", event)
	}
}

func TestWebSocketTranscriptionFailure(t *testing.T) {
	tr := &fakeTranscriber{err: fmt.Errorf("stt down")}
	sy := &fakeSynthesizer{audio: []byte("voice")}
	_, ts := newTestServer(t, tr, sy)

	conn := dialWS(t, ts)

	for i := 0; i < 20; i++ {
		sendAudioEvent(t, conn, []byte{byte(i + 1)})
	}

	event, data := readEvent(t, conn)
	if event != protocol.EventError {
		t.Fatalf("Expected error event, got %s", event)
	}
	var payload protocol.ErrorPayload
	json.Unmarshal(data, &payload)
	if payload.Message == "" {
		t.Error("Error event should carry a message")
	}
}

func TestWebSocketSynthesisFailureIsSilent(t *testing.T) {
	tr := &fakeTranscriber{text: "how do I win"}
	sy := &fakeSynthesizer{err: fmt.Errorf("tts down")}
	_, ts := newTestServer(t, tr, sy)

	conn := dialWS(t, ts)

	for i := 0; i < 20; i++ {
		sendAudioEvent(t, conn, []byte{byte(i + 1)})
	}

	event, _ := readEvent(t, conn)
	if event != protocol.EventTranscription {
		t.Fatalf("Expected transcription, got %s", event)
	}
	event, _ = readEvent(t, conn)
	if event != protocol.EventAIResponse {
		t.Fatalf("Expected ai-response, got %s", event)
	}

	// No further event: the synthesis failure must not surface
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected no event after ai-response when synthesis fails")
	}
}

func TestWebSocketMalformedEventsIgnored(t *testing.T) {
	tr := &fakeTranscriber{text: "still works"}
	sy := &fakeSynthesizer{audio: []byte("voice")}
	s, ts := newTestServer(t, tr, sy)

	conn := dialWS(t, ts)

	// Garbage frames are discarded without closing the connection
	conn.WriteMessage(websocket.TextMessage, []byte("not json at all"))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"audio-stream","data":{"audio":"!bad!"}}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"unknown-event"}`))

	for i := 0; i < 20; i++ {
		sendAudioEvent(t, conn, []byte{byte(i + 1)})
	}

	event, _ := readEvent(t, conn)
	if event != protocol.EventTranscription {
		t.Fatalf("Connection should survive malformed frames, got %s", event)
	}

	// The read loop processed every malformed frame before the chunks that
	// triggered the flush, so the counter is settled by now.
	if got := testutil.ToFloat64(s.metrics.ChunksDiscarded); got != 3 {
		t.Errorf("Expected 3 discarded events counted, got %v", got)
	}
}

func TestSessionRegisteredAndTornDown(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	sy := &fakeSynthesizer{audio: []byte("voice")}
	s, ts := newTestServer(t, tr, sy)

	conn := dialWS(t, ts)

	// Wake word is accepted as a no-op, confirming the session exists
	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"wake-word-detected"}`))

	waitFor(t, func() bool { return s.registry.Len() == 1 })

	conn.Close()

	waitFor(t, func() bool { return s.registry.Len() == 0 })
}

func TestHealthEndpoint(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	sy := &fakeSynthesizer{audio: []byte("voice")}
	_, ts := newTestServer(t, tr, sy)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid health JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestSessionsEndpoint(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	sy := &fakeSynthesizer{audio: []byte("voice")}
	s, ts := newTestServer(t, tr, sy)

	dialWS(t, ts)
	waitFor(t, func() bool { return s.registry.Len() == 1 })

	resp, err := http.Get(ts.URL + "/sessions")
	if err != nil {
		t.Fatalf("Sessions request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Count    int             `json:"count"`
		Sessions []session.Stats `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid sessions JSON: %v", err)
	}
	if body.Count != 1 || len(body.Sessions) != 1 {
		t.Errorf("Expected 1 session, got count=%d len=%d", body.Count, len(body.Sessions))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	sy := &fakeSynthesizer{audio: []byte("voice")}
	_, ts := newTestServer(t, tr, sy)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /metrics, got %d", resp.StatusCode)
	}
}

// waitFor polls a condition until it holds or the test times out
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for condition")
}
