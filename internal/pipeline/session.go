package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/sike25/chronicle-poc/internal/chronicle"
	"github.com/sike25/chronicle-poc/internal/timeline"
)

// Outcome summarizes a finished run.
type Outcome struct {
	Seq           uint64
	Query         string
	State         State
	DocumentCount int
	DateRange     chronicle.DateRange
	Set           *chronicle.EnrichedPeriodSet
	Err           *chronicle.StageError
	Displayed     bool // false when a newer run already owned the display
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Recorder is notified when a session run starts and ends.
type Recorder interface {
	RunStarted(ctx context.Context, seq uint64, query string, at time.Time) error
	RunFinished(ctx context.Context, o Outcome) error
}

// Session owns the display slot. Runs may overlap; whichever run has the
// highest sequence number among those that completed stays displayed.
type Session struct {
	runner   *Runner
	store    *timeline.Store
	recorder Recorder
	log      *slog.Logger
}

// NewSession creates a session. rec may be nil.
func NewSession(runner *Runner, store *timeline.Store, rec Recorder) *Session {
	return &Session{
		runner:   runner,
		store:    store,
		recorder: rec,
		log:      slog.Default().With("component", "session"),
	}
}

// Store returns the session's display slot.
func (s *Session) Store() *timeline.Store {
	return s.store
}

// Superseded reports whether a run newer than seq is already displayed.
func (s *Session) Superseded(seq uint64) bool {
	_, cur, ok := s.store.Current()
	return ok && cur > seq
}

// Run executes one pipeline run, forwarding every event to onEvent (which
// may be nil), and publishes the result to the display slot on success.
// The returned error is the run's *chronicle.StageError, if it failed.
func (s *Session) Run(ctx context.Context, query string, onEvent func(Event)) (Outcome, error) {
	run := s.runner.Start(query)
	out := Outcome{Seq: run.Seq, Query: query, StartedAt: time.Now()}

	if s.recorder != nil {
		if err := s.recorder.RunStarted(ctx, run.Seq, query, out.StartedAt); err != nil {
			s.log.Warn("recording run start", "run", run.Seq, "error", err)
		}
	}

	for ev := range run.Events(ctx) {
		if ev.Kind == EventRenderReady {
			out.Set = ev.Result
			out.Displayed = s.store.Publish(ev.Seq, *ev.Result)
			if !out.Displayed {
				s.log.Info("discarding stale result", "run", ev.Seq, "query", query)
			}
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}

	out.State = run.State()
	out.Err = run.Err()
	out.FinishedAt = time.Now()
	if sr, ok := run.Searched(); ok {
		out.DocumentCount = sr.DocumentCount
		out.DateRange = sr.DateRange
	}

	if s.recorder != nil {
		// the run's own context may already be cancelled
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.recorder.RunFinished(rctx, out); err != nil {
			s.log.Warn("recording run finish", "run", run.Seq, "error", err)
		}
		cancel()
	}

	if out.Err != nil {
		return out, out.Err
	}
	return out, nil
}
