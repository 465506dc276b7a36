// Package scrape coordinates the detail-fetch phase: given the item stubs
// discovered by pagination, it fetches each item's detail payload in bounded
// batches, extracts flat records, and tracks per-item outcomes so a run can
// finish (or be interrupted) with partial results intact.
package scrape

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Record is one extracted, output-ready item.
type Record map[string]any

// ItemStub identifies one item discovered on a listing page: the reference
// needed to fetch its detail payload plus the listing-page summary fields.
type ItemStub struct {
	// Reference is the detail-endpoint identifier (slug or numeric id).
	Reference string

	// Summary is the item's listing-page mapping, kept so summary-only
	// fields can be merged into the detail record.
	Summary map[string]any
}

// OutcomeStatus says how one item's fetch-and-extract ended.
type OutcomeStatus string

const (
	StatusOK       OutcomeStatus = "ok"
	StatusFailed   OutcomeStatus = "failed"
	StatusSkipped  OutcomeStatus = "skipped"
	StatusCanceled OutcomeStatus = "canceled"
)

// Outcome is the result of processing a single item.
type Outcome struct {
	Reference string
	Status    OutcomeStatus
	Record    Record
	Err       error
}

// FailureEntry records one item that could not be processed.
type FailureEntry struct {
	Reference string    `json:"reference"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// FailureLog is an append-only, concurrency-safe record of failed items.
type FailureLog struct {
	mu      sync.Mutex
	entries []FailureEntry
}

// Add appends a failure entry.
func (l *FailureLog) Add(reference, stage string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	l.mu.Lock()
	l.entries = append(l.entries, FailureEntry{
		Reference: reference,
		Stage:     stage,
		Error:     msg,
		At:        time.Now().UTC(),
	})
	l.mu.Unlock()
}

// Entries returns a copy of all recorded failures.
func (l *FailureLog) Entries() []FailureEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FailureEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded failures.
func (l *FailureLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RunState tracks one scrape run's identity and live counters.
type RunState struct {
	ID        string
	StartedAt time.Time

	discovered atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	canceled   atomic.Int64
	cacheHits  atomic.Int64
}

// NewRunState creates a run state with a fresh run id.
func NewRunState() *RunState {
	return &RunState{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Summary is an immutable snapshot of a run's counters.
type Summary struct {
	RunID      string        `json:"run_id"`
	Discovered int64         `json:"discovered"`
	Succeeded  int64         `json:"succeeded"`
	Failed     int64         `json:"failed"`
	Skipped    int64         `json:"skipped"`
	Canceled   int64         `json:"canceled"`
	CacheHits  int64         `json:"cache_hits"`
	Duration   time.Duration `json:"duration"`
	Partial    bool          `json:"partial"`
}

// Snapshot captures the current counter values.
func (s *RunState) Snapshot() Summary {
	canceled := s.canceled.Load()
	return Summary{
		RunID:      s.ID,
		Discovered: s.discovered.Load(),
		Succeeded:  s.succeeded.Load(),
		Failed:     s.failed.Load(),
		Skipped:    s.skipped.Load(),
		Canceled:   canceled,
		CacheHits:  s.cacheHits.Load(),
		Duration:   time.Since(s.StartedAt),
		Partial:    canceled > 0,
	}
}

func (s *RunState) addOutcome(status OutcomeStatus) {
	switch status {
	case StatusOK:
		s.succeeded.Add(1)
	case StatusFailed:
		s.failed.Add(1)
	case StatusSkipped:
		s.skipped.Add(1)
	case StatusCanceled:
		s.canceled.Add(1)
	}
}
