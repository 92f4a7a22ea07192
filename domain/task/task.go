package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PairStatus represents the lifecycle state of one site pair within a run.
type PairStatus string

const (
	PairStatusPending   PairStatus = "pending"
	PairStatusRunning   PairStatus = "running"
	PairStatusSucceeded PairStatus = "succeeded"
	PairStatusFailed    PairStatus = "failed"
	PairStatusSkipped   PairStatus = "skipped"
)

// RunStatus represents the terminal state of a whole task run.
type RunStatus string

const (
	RunStatusRunning         RunStatus = "running"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusPartiallyFailed RunStatus = "partially_failed"
	RunStatusCancelled       RunStatus = "cancelled"
)

// SitePair identifies one unit of work: a source site matched against a
// target site, optionally narrowed to a single library.
type SitePair struct {
	SourceURL string `json:"source_url" yaml:"source"`
	TargetURL string `json:"target_url" yaml:"target"`
	Library   string `json:"library,omitempty" yaml:"library,omitempty"`
}

// SameAs reports whether two pairs identify the same work. Used for resume
// matching, so the comparison is case-insensitive.
func (p SitePair) SameAs(other SitePair) bool {
	return strings.EqualFold(p.SourceURL, other.SourceURL) &&
		strings.EqualFold(p.TargetURL, other.TargetURL) &&
		strings.EqualFold(p.Library, other.Library)
}

// String renders the pair for logs and progress messages.
func (p SitePair) String() string {
	if p.Library != "" {
		return fmt.Sprintf("%s -> %s [%s]", p.SourceURL, p.TargetURL, p.Library)
	}
	return fmt.Sprintf("%s -> %s", p.SourceURL, p.TargetURL)
}

// PairCounts aggregates the reconciliation outcomes for one pair.
type PairCounts struct {
	Found            int `json:"found"`
	SizeIssues       int `json:"size_issues"`
	SourceOnly       int `json:"source_only"`
	TargetOnly       int `json:"target_only"`
	AssignmentsFound int `json:"assignments_found"`
}

// SitePairRun records the execution of one pair. Created once per pair,
// mutated incrementally while its libraries are processed, finalized when
// the pair completes.
type SitePairRun struct {
	Pair                SitePair   `json:"pair"`
	Status              PairStatus `json:"status"`
	Error               string     `json:"error,omitempty"`
	Counts              PairCounts `json:"counts"`
	CompletenessPercent float64    `json:"completeness_percent"`
	LibrariesProcessed  []string   `json:"libraries_processed,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         time.Time  `json:"completed_at"`
}

// MarkSucceeded finalizes the pair as successful.
func (r *SitePairRun) MarkSucceeded() {
	r.Status = PairStatusSucceeded
	r.CompletedAt = time.Now()
}

// MarkFailed finalizes the pair with the error that stopped it.
func (r *SitePairRun) MarkFailed(err error) {
	r.Status = PairStatusFailed
	r.Error = err.Error()
	r.CompletedAt = time.Now()
}

// MarkSkipped finalizes the pair as skipped with a recorded reason.
func (r *SitePairRun) MarkSkipped(reason string) {
	r.Status = PairStatusSkipped
	r.Error = reason
	r.CompletedAt = time.Now()
}

// LogEntry is one line of a run's ordered execution log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// TaskRunResult owns the ordered list of pair runs for one execution. It is
// the persistence unit for a completed or partial run and carries the
// metadata needed to resume after a crash.
type TaskRunResult struct {
	RunID           string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	Status          RunStatus      `json:"status"`
	Pairs           []*SitePairRun `json:"pairs"`
	ThrottleRetries int64          `json:"throttle_retries"`
	Log             []LogEntry     `json:"log,omitempty"`
	ResumedFrom     string         `json:"resumed_from,omitempty"` // RunID of the run whose results were carried forward
}

// NewTaskRunResult starts a new run record.
func NewTaskRunResult() *TaskRunResult {
	return &TaskRunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}
}

// AppendLog appends a timestamped line to the execution log.
func (t *TaskRunResult) AppendLog(format string, args ...any) {
	t.Log = append(t.Log, LogEntry{At: time.Now(), Message: fmt.Sprintf(format, args...)})
}

// SucceededRunFor returns the recorded run for this exact pair if the result
// holds one that succeeded, enabling resume-from-previous.
func (t *TaskRunResult) SucceededRunFor(pair SitePair) (*SitePairRun, bool) {
	if t == nil {
		return nil, false
	}
	for _, pr := range t.Pairs {
		if pr.Status == PairStatusSucceeded && pr.Pair.SameAs(pair) {
			return pr, true
		}
	}
	return nil, false
}

// Finalize computes the run-level terminal status from its pairs. Cancelled
// wins over everything; otherwise any failed or skipped pair makes the run
// partially failed.
func (t *TaskRunResult) Finalize(cancelled bool) {
	t.CompletedAt = time.Now()
	if cancelled {
		t.Status = RunStatusCancelled
		return
	}
	t.Status = RunStatusCompleted
	for _, pr := range t.Pairs {
		if pr.Status == PairStatusFailed || pr.Status == PairStatusSkipped {
			t.Status = RunStatusPartiallyFailed
			return
		}
	}
}
