package session

import (
	"sync"
	"time"
)

// Session represents server-side state for one active client connection.
// The chunk buffer accumulates raw audio in arrival order until a flush,
// and the busy flag is true while a transcription round is in flight.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu               sync.Mutex
	buffer           [][]byte
	busy             bool
	lastActivity     time.Time
	droppedWhileBusy uint64
}

// Stats represents a point-in-time snapshot of session state for monitoring
type Stats struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
	BufferedChunks   int       `json:"buffered_chunks"`
	Busy             bool      `json:"busy"`
	DroppedWhileBusy uint64    `json:"dropped_while_busy"`
}

// NewSession creates a session with an empty buffer and the busy flag cleared
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActivity: now,
	}
}

// AppendOrFlush applies the guarded buffering policy as a single atomic step.
//
// If a transcription round is in flight the chunk is dropped (not buffered)
// and dropped=true is returned. Otherwise the chunk is appended; when the
// buffer reaches threshold chunks the whole buffer is handed back as batch,
// the live buffer is reset to empty, and the busy flag is set, all under one
// lock. A concurrently arriving chunk therefore starts a fresh batch and can
// never be lost or double-counted across the flush boundary.
//
// The caller owns the returned batch and must call EndRound once the round
// resolves.
func (s *Session) AppendOrFlush(chunk []byte, threshold int) (batch [][]byte, dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()

	if s.busy {
		s.droppedWhileBusy++
		return nil, true
	}

	s.buffer = append(s.buffer, chunk)
	if len(s.buffer) < threshold {
		return nil, false
	}

	batch = s.buffer
	s.buffer = make([][]byte, 0, threshold)
	s.busy = true
	return batch, false
}

// EndRound clears the busy flag, allowing the next flush to dispatch.
// It must be called exactly once per batch returned by AppendOrFlush,
// regardless of whether the round succeeded.
func (s *Session) EndRound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Busy reports whether a transcription round is currently in flight
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// BufferLen returns the current number of buffered chunks
func (s *Session) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// LastActivity returns the time of the last chunk arrival
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch updates the last activity time without mutating the buffer
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// GetStats returns a snapshot of the session state
func (s *Session) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ID:               s.ID,
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.lastActivity,
		BufferedChunks:   len(s.buffer),
		Busy:             s.busy,
		DroppedWhileBusy: s.droppedWhileBusy,
	}
}
