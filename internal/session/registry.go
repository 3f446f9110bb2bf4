package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry manages all active sessions, keyed by connection identity.
// It is the only shared, process-wide mutable state in the service; each
// session's buffer and flag are only ever mutated by that session's own
// event handlers.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	timeout  time.Duration

	// OnEvict is invoked (outside the registry lock) for every session
	// removed by the idle sweeper. Optional.
	OnEvict func(id string)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates a session registry. Sessions with no activity for
// longer than timeout are evicted by the sweeper once Start is called.
func NewRegistry(logger *slog.Logger, timeout time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
}

// Create registers a new session with an empty buffer and clear busy flag.
// If the id is already registered the existing session is returned.
func (r *Registry) Create(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.sessions[id]; exists {
		r.logger.Warn("Session already exists, reusing",
			slog.String("session_id", id),
		)
		return existing
	}

	sess := NewSession(id)
	r.sessions[id] = sess

	r.logger.Info("Session created",
		slog.String("session_id", id),
		slog.Int("active_sessions", len(r.sessions)),
	)

	return sess
}

// Get retrieves an existing session
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	return sess, exists
}

// Remove discards a session and any buffered, not-yet-flushed chunks.
// It reports whether the session existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return false
	}

	delete(r.sessions, id)

	r.logger.Info("Session removed",
		slog.String("session_id", id),
		slog.Int("active_sessions", len(r.sessions)),
	)

	return true
}

// Len returns the number of active sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// GetAllStats returns stats snapshots for all active sessions
func (r *Registry) GetAllStats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]Stats, 0, len(r.sessions))
	for _, sess := range r.sessions {
		stats = append(stats, sess.GetStats())
	}
	return stats
}

// Start launches the idle-session sweeper. It runs until Stop is called or
// the parent context is cancelled.
func (r *Registry) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the sweeper and waits for it to exit
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// sweep evicts sessions whose last activity is older than the timeout
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.timeout)

	r.mu.Lock()
	var evicted []string
	for id, sess := range r.sessions {
		if sess.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.logger.Info("Evicted idle session",
			slog.String("session_id", id),
			slog.Duration("timeout", r.timeout),
		)
		if r.OnEvict != nil {
			r.OnEvict(id)
		}
	}
}
