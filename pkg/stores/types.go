package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run is one recorded execution.
type Run struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Executed    int        `json:"executed"`
	Failed      int        `json:"failed"`
	Pending     int        `json:"pending"`
	Error       *string    `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero if it never completed.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// ActionResult is one recorded action outcome.
type ActionResult struct {
	RunID     string        `json:"run_id"`
	Manifest  string        `json:"manifest"`
	Index     int           `json:"index"`
	Kind      string        `json:"kind"`
	Message   string        `json:"message,omitempty"`
	Error     *string       `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store is the run history persistence interface.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
	HealthCheck(ctx context.Context) error

	// Runs
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Action results
	RecordAction(ctx context.Context, result *ActionResult) error
	ListActions(ctx context.Context, runID string) ([]*ActionResult, error)
}
