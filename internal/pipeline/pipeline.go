// Package pipeline runs a query through search, organize and enrich, and
// reports each step as an event ending in either a renderable period set or
// a failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sike25/chronicle-poc/internal/backend"
	"github.com/sike25/chronicle-poc/internal/chronicle"
)

// EventKind distinguishes progress from the two terminal events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventRenderReady
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventRenderReady:
		return "render_ready"
	case EventFailure:
		return "failure"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one observable step of a run.
type Event struct {
	Kind    EventKind
	Seq     uint64
	Query   string
	Stage   chronicle.Stage
	State   State
	Message string
	At      time.Time

	Result *chronicle.EnrichedPeriodSet // EventRenderReady only
	Err    *chronicle.StageError        // EventFailure only
}

// IsTerminal reports whether the event ends its run.
func (e Event) IsTerminal() bool {
	return e.Kind == EventRenderReady || e.Kind == EventFailure
}

// Runner starts runs against a backend. Each run gets the next sequence
// number; runs share nothing else.
type Runner struct {
	backend backend.Backend
	log     *slog.Logger
	seq     atomic.Uint64
}

// NewRunner creates a runner.
func NewRunner(b backend.Backend) *Runner {
	return &Runner{
		backend: b,
		log:     slog.Default().With("component", "pipeline"),
	}
}

// Run starts a run for query and returns its events.
func (r *Runner) Run(ctx context.Context, query string) iter.Seq[Event] {
	return r.Start(query).Events(ctx)
}

// Start allocates a run without executing anything.
func (r *Runner) Start(query string) *Run {
	return &Run{
		Seq:     r.seq.Add(1),
		Query:   query,
		backend: r.backend,
		log:     r.log,
	}
}

// Run is a single execution of the pipeline for one query.
type Run struct {
	Seq   uint64
	Query string

	backend backend.Backend
	log     *slog.Logger
	state   atomic.Int32
	used    atomic.Bool
	err     atomic.Pointer[chronicle.StageError]

	// written by the consuming goroutine only
	search chronicle.SearchResult
}

// State returns the run's current state. Safe for concurrent use.
func (run *Run) State() State {
	return State(run.state.Load())
}

// Err returns the failure of a failed run.
func (run *Run) Err() *chronicle.StageError {
	return run.err.Load()
}

// Searched returns the search result once the search stage has succeeded.
// Read it after the event sequence is exhausted.
func (run *Run) Searched() (chronicle.SearchResult, bool) {
	return run.search, run.search.Query != ""
}

// Events returns the run's event sequence. Stages execute while the
// sequence is consumed; stopping early stops the run. The sequence can be
// consumed once; later iterations yield nothing.
func (run *Run) Events(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if run.used.Swap(true) {
			return
		}
		run.execute(ctx, yield)
	}
}

func (run *Run) execute(ctx context.Context, yield func(Event) bool) {
	log := run.log.With("run", run.Seq, "query", run.Query)
	alive := true

	emit := func(kind EventKind, stage chronicle.Stage, msg string) bool {
		alive = yield(Event{
			Kind:    kind,
			Seq:     run.Seq,
			Query:   run.Query,
			Stage:   stage,
			State:   run.State(),
			Message: msg,
			At:      time.Now(),
		})
		return alive
	}

	fail := func(err error) {
		var se *chronicle.StageError
		if !errors.As(err, &se) {
			stage, kind := stageOf(run.State())
			se = chronicle.NewStageError(stage, kind, err, "unexpected error")
		}
		run.err.Store(se)
		run.advance(Failed)
		log.Warn("run failed", "stage", se.Stage, "error", se)
		if alive {
			yield(Event{
				Kind:    EventFailure,
				Seq:     run.Seq,
				Query:   run.Query,
				Stage:   se.Stage,
				State:   Failed,
				Message: se.Error(),
				At:      time.Now(),
				Err:     se,
			})
		}
	}

	// abandon marks a run whose consumer stopped listening.
	abandon := func(stage chronicle.Stage, kind error) {
		alive = false
		fail(chronicle.NewStageError(stage, kind, context.Canceled, "consumer stopped"))
	}

	if strings.TrimSpace(run.Query) == "" {
		fail(chronicle.NewStageError(chronicle.StageValidate, chronicle.ErrInvalidQuery, nil, "query is empty"))
		return
	}

	// Step 1: Search
	run.advance(Searching)
	log.Info("step 1/4: searching archives")
	if !emit(EventProgress, chronicle.StageSearch, "Searching archives...") {
		abandon(chronicle.StageSearch, chronicle.ErrSearchFailed)
		return
	}
	if err := ctx.Err(); err != nil {
		fail(chronicle.NewStageError(chronicle.StageSearch, chronicle.ErrSearchFailed, err, "run cancelled"))
		return
	}
	sr, err := Search(ctx, run.backend, run.Query)
	if err != nil {
		fail(err)
		return
	}
	run.search = sr
	if !emit(EventProgress, chronicle.StageSearch, searchSummary(sr)) {
		abandon(chronicle.StageOrganize, chronicle.ErrOrganizeFailed)
		return
	}

	// Step 2: Organize
	run.advance(Organizing)
	log.Info("step 2/4: organizing into time periods", "documents", sr.DocumentCount)
	if !emit(EventProgress, chronicle.StageOrganize, "Organizing documents into time periods...") {
		abandon(chronicle.StageOrganize, chronicle.ErrOrganizeFailed)
		return
	}
	if err := ctx.Err(); err != nil {
		fail(chronicle.NewStageError(chronicle.StageOrganize, chronicle.ErrOrganizeFailed, err, "run cancelled"))
		return
	}
	ps, err := Organize(ctx, run.backend, sr)
	if err != nil {
		fail(err)
		return
	}
	if !emit(EventProgress, chronicle.StageOrganize, fmt.Sprintf("Created %d time %s", ps.BucketCount, plural(ps.BucketCount, "period"))) {
		abandon(chronicle.StageEnrich, chronicle.ErrEnrichFailed)
		return
	}

	// Step 3: Enrich
	run.advance(Enriching)
	log.Info("step 3/4: generating period summaries", "buckets", ps.BucketCount)
	if !emit(EventProgress, chronicle.StageEnrich, "Generating period summaries...") {
		abandon(chronicle.StageEnrich, chronicle.ErrEnrichFailed)
		return
	}
	if err := ctx.Err(); err != nil {
		fail(chronicle.NewStageError(chronicle.StageEnrich, chronicle.ErrEnrichFailed, err, "run cancelled"))
		return
	}
	eps, err := Enrich(ctx, run.backend, ps)
	if err != nil {
		fail(err)
		return
	}
	if !emit(EventProgress, chronicle.StageEnrich, "Period summaries complete") {
		abandon(chronicle.StageRender, chronicle.ErrEnrichFailed)
		return
	}

	// Step 4: Render
	run.advance(Ready)
	log.Info("step 4/4: timeline ready", "buckets", eps.BucketCount)
	yield(Event{
		Kind:    EventRenderReady,
		Seq:     run.Seq,
		Query:   run.Query,
		Stage:   chronicle.StageRender,
		State:   Ready,
		Message: "Building timeline...",
		At:      time.Now(),
		Result:  &eps,
	})
}

// advance moves the run to state to. An illegal transition is a bug in
// execute, not a runtime condition.
func (run *Run) advance(to State) {
	from := run.State()
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", from, to))
	}
	run.state.Store(int32(to))
}

// stageOf returns the stage a run in state s is executing and the error kind
// that stage fails with.
func stageOf(s State) (chronicle.Stage, error) {
	switch s {
	case Searching:
		return chronicle.StageSearch, chronicle.ErrSearchFailed
	case Organizing:
		return chronicle.StageOrganize, chronicle.ErrOrganizeFailed
	case Enriching, Ready:
		return chronicle.StageEnrich, chronicle.ErrEnrichFailed
	default:
		return chronicle.StageValidate, chronicle.ErrInvalidQuery
	}
}

func searchSummary(sr chronicle.SearchResult) string {
	n := humanize.Comma(int64(sr.DocumentCount))
	noun := plural(sr.DocumentCount, "document")
	if sr.DateRange.Min == "" || sr.DateRange.Max == "" {
		return fmt.Sprintf("Found %s %s", n, noun)
	}
	return fmt.Sprintf("Found %s %s spanning %s - %s", n, noun, sr.DateRange.Min, sr.DateRange.Max)
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}
