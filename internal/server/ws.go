package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/charlie-brunold/Hexpert/internal/protocol"
)

// upgrader accepts any origin: the service fronts a local browser client and
// carries no credentials or persistent state.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn wraps a websocket connection with a write mutex. gorilla/websocket
// allows at most one concurrent writer, and events for one session can be
// emitted from the round goroutine and the detached synthesis task at once.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// handleWS upgrades the connection, registers a session, and runs the read
// loop until the client disconnects. The single read loop guarantees that a
// session's chunk-append events are processed strictly in arrival order.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	sessionID := uuid.NewString()
	wc := &wsConn{conn: conn}

	s.registerConn(sessionID, wc)
	s.dispatcher.OnSessionStart(sessionID)

	s.logger.Info("Client connected",
		slog.String("session_id", sessionID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer func() {
		s.dispatcher.OnSessionEnd(sessionID)
		s.unregisterConn(sessionID)
		conn.Close()
		s.logger.Info("Client disconnected",
			slog.String("session_id", sessionID),
		)
	}()

	ctx := context.Background()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("WebSocket read error",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			// Raw binary frames are accepted as bare audio chunks.
			s.dispatcher.OnChunk(ctx, sessionID, data)

		case websocket.TextMessage:
			event, err := protocol.ParseClientEvent(data)
			if err != nil {
				// Malformed input is counted and discarded, never fatal.
				s.metrics.ChunksDiscarded.Inc()
				s.logger.Debug("Discarding malformed client event",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
				continue
			}

			switch event.Event {
			case protocol.EventAudioStream:
				s.dispatcher.OnChunk(ctx, sessionID, event.Chunk)
			case protocol.EventWakeWord:
				s.dispatcher.OnWakeWord(sessionID)
			}
		}
	}
}

// registerConn records the websocket connection for a session id
func (s *Server) registerConn(sessionID string, conn *wsConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[sessionID] = conn
}

// unregisterConn removes the connection mapping for a session id
func (s *Server) unregisterConn(sessionID string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, sessionID)
}

// getConn looks up the connection for a session id
func (s *Server) getConn(sessionID string) (*wsConn, bool) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	conn, exists := s.conns[sessionID]
	return conn, exists
}

// send delivers a serialized event to a session's connection. Events for
// sessions that have already disconnected are dropped quietly.
func (s *Server) send(sessionID string, build func() ([]byte, error), event string) {
	conn, exists := s.getConn(sessionID)
	if !exists {
		s.logger.Debug("Dropping event for disconnected session",
			slog.String("session_id", sessionID),
			slog.String("event", event),
		)
		return
	}

	msg, err := build()
	if err != nil {
		s.logger.Error("Failed to encode event",
			slog.String("session_id", sessionID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := conn.writeMessage(msg); err != nil {
		s.logger.Warn("Failed to deliver event",
			slog.String("session_id", sessionID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// CloseSession force-closes the connection for a session id, if any.
// Used when the registry evicts an idle session.
func (s *Server) CloseSession(sessionID string) {
	if conn, exists := s.getConn(sessionID); exists {
		conn.conn.Close()
	}
}

// SendTranscription implements pipeline.Events
func (s *Server) SendTranscription(sessionID, text string, timestamp time.Time) {
	s.send(sessionID, func() ([]byte, error) {
		return protocol.NewTranscriptionMessage(text, timestamp)
	}, protocol.EventTranscription)
}

// SendAIResponse implements pipeline.Events
func (s *Server) SendAIResponse(sessionID, question, answer string, timestamp time.Time) {
	s.send(sessionID, func() ([]byte, error) {
		return protocol.NewAIResponseMessage(question, answer, timestamp)
	}, protocol.EventAIResponse)
}

// SendTTSAudio implements pipeline.Events
func (s *Server) SendTTSAudio(sessionID string, audio []byte, timestamp time.Time) {
	s.send(sessionID, func() ([]byte, error) {
		return protocol.NewTTSAudioMessage(audio, timestamp)
	}, protocol.EventTTSAudio)
}

// SendError implements pipeline.Events
func (s *Server) SendError(sessionID, message string) {
	s.send(sessionID, func() ([]byte, error) {
		return protocol.NewErrorMessage(message)
	}, protocol.EventError)
}
