package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlie-brunold/Hexpert/internal/config"
	"github.com/charlie-brunold/Hexpert/internal/metrics"
	"github.com/charlie-brunold/Hexpert/internal/pipeline"
	"github.com/charlie-brunold/Hexpert/internal/session"
)

// Server hosts the websocket relay, static assets for the capture client,
// and the monitoring endpoints.
type Server struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	registry   *session.Registry
	dispatcher *pipeline.Dispatcher
	metrics    *metrics.Metrics
	promReg    *prometheus.Registry

	conns  map[string]*wsConn
	connMu sync.RWMutex

	startTime time.Time
}

// NewServer creates the HTTP/WebSocket server. The dispatcher is attached
// separately via SetDispatcher because it needs the server as its events sink.
func NewServer(cfg *config.Config, logger *slog.Logger, registry *session.Registry,
	m *metrics.Metrics, promReg *prometheus.Registry) *Server {

	s := &Server{
		logger:    logger,
		config:    cfg,
		registry:  registry,
		metrics:   m,
		promReg:   promReg,
		conns:     make(map[string]*wsConn),
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  0, // websocket connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// SetDispatcher attaches the dispatch pipeline. Must be called before Start.
func (s *Server) SetDispatcher(d *pipeline.Dispatcher) {
	s.dispatcher = d
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Static capture client
	mux.Handle("/", http.FileServer(http.Dir(s.config.Server.StaticDir)))

	// WebSocket relay
	mux.HandleFunc("/ws", s.handleWS)

	// Monitoring endpoints
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/sessions", s.withMetrics("/sessions", s.handleSessions))
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
}

// withMetrics wraps an HTTP handler with request metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		status := fmt.Sprintf("%d", ww.statusCode)
		s.metrics.RecordHTTPRequest(r.Method, endpoint, status, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			s.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter captures the status code for metrics
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// handleHealth reports service liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, map[string]any{
		"status":          "ok",
		"uptime_seconds":  time.Since(s.startTime).Seconds(),
		"active_sessions": s.registry.Len(),
	})
}

// handleSessions reports per-session state snapshots
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, map[string]any{
		"count":    s.registry.Len(),
		"sessions": s.registry.GetAllStats(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode JSON response",
			slog.String("error", err.Error()),
		)
	}
}

// Start begins serving in a background goroutine
func (s *Server) Start() error {
	if s.dispatcher == nil {
		return fmt.Errorf("dispatcher not attached")
	}

	go func() {
		s.logger.Info("HTTP server listening",
			slog.String("address", s.server.Addr),
		)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error",
				slog.String("error", err.Error()),
			)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server, closing client connections
func (s *Server) Stop(ctx context.Context) error {
	s.connMu.Lock()
	for id, conn := range s.conns {
		conn.conn.Close()
		delete(s.conns, id)
	}
	s.connMu.Unlock()

	return s.server.Shutdown(ctx)
}
