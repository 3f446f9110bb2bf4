package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charlie-brunold/Hexpert/internal/metrics"
	"github.com/charlie-brunold/Hexpert/internal/session"
)

// Transcriber converts a flushed batch of audio chunks into recognized text
type Transcriber interface {
	Transcribe(ctx context.Context, chunks [][]byte) (string, error)
}

// Answerer produces an answer for a question. It never fails.
type Answerer interface {
	Answer(ctx context.Context, question string) string
}

// Synthesizer converts answer text to audio bytes
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Events delivers asynchronous notifications to the originating session.
// Implementations must tolerate unknown session ids (the session may have
// disconnected while a round was in flight).
type Events interface {
	SendTranscription(sessionID, text string, timestamp time.Time)
	SendAIResponse(sessionID, question, answer string, timestamp time.Time)
	SendTTSAudio(sessionID string, audio []byte, timestamp time.Time)
	SendError(sessionID, message string)
}

// transcriptionFailedMessage is the user-visible error for a failed round
const transcriptionFailedMessage = "Sorry, I couldn't make out what you said. Please try again."

// Config contains dispatcher configuration
type Config struct {
	// FlushThreshold is the number of buffered chunks that triggers a
	// flush. At ~100ms per chunk the default of 20 approximates a two
	// second batching window.
	FlushThreshold int
}

// Dispatcher owns the accumulate-or-flush decision for every session
type Dispatcher struct {
	registry    *session.Registry
	transcriber Transcriber
	answerer    Answerer
	synthesizer Synthesizer
	events      Events
	metrics     *metrics.Metrics
	logger      *slog.Logger
	threshold   int

	// Tracks in-flight rounds and detached synthesis tasks for shutdown.
	wg sync.WaitGroup
}

// NewDispatcher creates the buffering and dispatch pipeline
func NewDispatcher(registry *session.Registry, transcriber Transcriber, answerer Answerer,
	synthesizer Synthesizer, events Events, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Dispatcher {

	threshold := cfg.FlushThreshold
	if threshold < 1 {
		threshold = 20
	}

	return &Dispatcher{
		registry:    registry,
		transcriber: transcriber,
		answerer:    answerer,
		synthesizer: synthesizer,
		events:      events,
		metrics:     m,
		logger:      logger,
		threshold:   threshold,
	}
}

// OnSessionStart creates session state for a newly established connection
func (d *Dispatcher) OnSessionStart(sessionID string) *session.Session {
	sess := d.registry.Create(sessionID)
	d.metrics.SessionsCreated.Inc()
	d.metrics.ActiveSessions.Set(float64(d.registry.Len()))
	return sess
}

// OnSessionEnd discards the session and any buffered, not-yet-flushed chunks.
// A round already in flight for the session runs to completion; its
// notifications are dropped by the events sink once the connection is gone.
func (d *Dispatcher) OnSessionEnd(sessionID string) {
	if d.registry.Remove(sessionID) {
		d.metrics.SessionsDestroyed.Inc()
		d.metrics.ActiveSessions.Set(float64(d.registry.Len()))
	}
}

// OnWakeWord handles the advisory wake-word signal. Currently a placeholder:
// the client only streams audio after its own wake-word gate, so the server
// just records activity.
func (d *Dispatcher) OnWakeWord(sessionID string) {
	if sess, exists := d.registry.Get(sessionID); exists {
		sess.Touch()
		d.logger.Debug("Wake word signal received",
			slog.String("session_id", sessionID),
		)
	}
}

// OnChunk handles one incoming audio chunk for a session. Empty chunks are
// discarded silently, chunks for unknown sessions are a logged no-op, and
// chunks arriving while a round is in flight are dropped under the guarded
// backpressure policy. When the buffer reaches the flush threshold the
// accumulated batch is dispatched asynchronously and the live buffer starts
// fresh.
func (d *Dispatcher) OnChunk(ctx context.Context, sessionID string, chunk []byte) {
	if len(chunk) == 0 {
		d.metrics.ChunksDiscarded.Inc()
		return
	}

	sess, exists := d.registry.Get(sessionID)
	if !exists {
		d.logger.Debug("Chunk for unknown session ignored",
			slog.String("session_id", sessionID),
		)
		return
	}

	d.metrics.ChunksReceived.Inc()

	batch, dropped := sess.AppendOrFlush(chunk, d.threshold)
	if dropped {
		d.metrics.ChunksDropped.Inc()
		d.logger.Debug("Chunk dropped, transcription round in flight",
			slog.String("session_id", sessionID),
		)
		return
	}

	if batch == nil {
		return
	}

	d.metrics.Flushes.Inc()
	d.logger.Debug("Buffer flushed",
		slog.String("session_id", sessionID),
		slog.Int("chunks", len(batch)),
	)

	d.wg.Add(1)
	go d.runRound(ctx, sess, batch)
}

// Wait blocks until all in-flight rounds and synthesis tasks have finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// runRound executes one transcription round for a flushed batch. The busy
// flag is released in a defer so the session accepts new dispatches whether
// the round succeeds or fails.
func (d *Dispatcher) runRound(ctx context.Context, sess *session.Session, batch [][]byte) {
	defer d.wg.Done()
	defer sess.EndRound()

	start := time.Now()
	defer func() {
		d.metrics.RoundDuration.Observe(time.Since(start).Seconds())
	}()

	text, err := d.transcriber.Transcribe(ctx, batch)
	if err != nil {
		d.metrics.RoundsFailed.Inc()
		d.logger.Error("Transcription failed",
			slog.String("session_id", sess.ID),
			slog.Int("chunks", len(batch)),
			slog.String("error", err.Error()),
		)
		d.events.SendError(sess.ID, transcriptionFailedMessage)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		// Blank transcript: the round ends quietly with no downstream
		// call and no notification.
		d.metrics.BlankTranscripts.Inc()
		return
	}

	d.events.SendTranscription(sess.ID, text, time.Now())

	answer := d.answerer.Answer(ctx, text)
	d.events.SendAIResponse(sess.ID, text, answer, time.Now())
	d.metrics.RoundsSucceeded.Inc()

	d.logger.Info("Round completed",
		slog.String("session_id", sess.ID),
		slog.String("question", text),
		slog.Duration("duration", time.Since(start)),
	)

	// Detached synthesis task: the text answer is already delivered, so a
	// synthesis failure is logged and never retracts or delays it.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		audio, err := d.synthesizer.Synthesize(ctx, answer)
		if err != nil {
			d.metrics.SynthesisFailures.Inc()
			d.logger.Warn("Speech synthesis failed",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		d.events.SendTTSAudio(sess.ID, audio, time.Now())
	}()
}
