package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sike25/chronicle-poc/internal/pipeline"
)

// Journal records pipeline runs in the database. It implements
// pipeline.Recorder.
type Journal struct {
	db *DB

	mu  sync.Mutex
	ids map[uint64]string // run sequence -> row id, while in flight
}

// NewJournal creates a journal backed by db.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db, ids: make(map[uint64]string)}
}

// RunStarted inserts a row for the run.
func (j *Journal) RunStarted(_ context.Context, seq uint64, query string, at time.Time) error {
	id := uuid.NewString()
	if err := j.db.InsertRun(id, seq, query, at); err != nil {
		return err
	}
	j.mu.Lock()
	j.ids[seq] = id
	j.mu.Unlock()
	return nil
}

// RunFinished completes the run's row.
func (j *Journal) RunFinished(_ context.Context, o pipeline.Outcome) error {
	j.mu.Lock()
	id, ok := j.ids[o.Seq]
	delete(j.ids, o.Seq)
	j.mu.Unlock()
	if !ok {
		// start was never recorded
		id = uuid.NewString()
		if err := j.db.InsertRun(id, o.Seq, o.Query, o.StartedAt); err != nil {
			return err
		}
	}

	var failedStage, errMsg *string
	if o.Err != nil {
		stage := string(o.Err.Stage)
		msg := o.Err.Error()
		failedStage, errMsg = &stage, &msg
	}

	var buckets []RunBucket
	if o.Set != nil {
		buckets = make([]RunBucket, len(o.Set.Buckets))
		for i, b := range o.Set.Buckets {
			buckets[i] = RunBucket{Position: i, Label: b.Label, ArticleCount: b.ArticleCount}
		}
	}

	return j.db.FinishRun(id, o.State.String(), failedStage, errMsg, o.DocumentCount, o.Displayed, buckets, o.FinishedAt)
}
