package database

import "time"

// Run states as stored. They match the pipeline's state names.
const (
	StateReady  = "ready"
	StateFailed = "failed"
)

// Run is one journaled pipeline run.
type Run struct {
	ID            string
	Seq           int64
	Query         string
	State         string
	FailedStage   *string
	Error         *string
	DocumentCount int
	BucketCount   int
	Displayed     bool
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// Finished reports whether the run reached a terminal state.
func (r Run) Finished() bool {
	return r.FinishedAt != nil
}

// Duration returns how long a finished run took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunBucket is the label and size of one bucket of a successful run.
type RunBucket struct {
	Position     int
	Label        string
	ArticleCount int
}

// QueryStat aggregates runs of a single query.
type QueryStat struct {
	Query     string
	Runs      int
	Succeeded int
	LastRunAt time.Time
}

// Stats contains aggregate journal statistics.
type Stats struct {
	TotalRuns  int
	Succeeded  int
	Failed     int
	Unfinished int
	Queries    int
}
