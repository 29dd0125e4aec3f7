package pipeline

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/35services/slack-2-wordpress/internal/errors"
)

// Status is one phase of the pipeline's linear state machine. There are no
// backward transitions; completed and errored are terminal.
type Status string

const (
	StatusStarting               Status = "starting"
	StatusValidatingAccess       Status = "validating-access"
	StatusFetchingThreadList     Status = "fetching-thread-list"
	StatusFetchingThreadMessages Status = "fetching-thread-messages"
	StatusDownloadingMedia       Status = "downloading-media"
	StatusExportingTranscripts   Status = "exporting-transcripts"
	StatusPublishing             Status = "publishing"
	StatusCompleted              Status = "completed"
	StatusError                  Status = "error"
)

// totalSteps counts the stages a run passes through before completion.
const totalSteps = 7

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// RunSnapshot is a point-in-time view of a run for external observers.
type RunSnapshot struct {
	ID                 string     `json:"id"`
	Status             Status     `json:"status"`
	Message            string     `json:"message"`
	CurrentStep        int        `json:"current_step"`
	TotalSteps         int        `json:"total_steps"`
	CurrentFingerprint string     `json:"current_fingerprint,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	Report             *Report    `json:"report,omitempty"`
}

// Run is the mutable progress handle of one syncAll invocation. It is
// created per run and handed to observers through the Tracker, never stored
// in a package-level variable.
type Run struct {
	mu                 sync.Mutex
	id                 string
	status             Status
	message            string
	currentStep        int
	currentFingerprint string
	startedAt          time.Time
	finishedAt         *time.Time
	report             *Report
}

func newRun() *Run {
	return &Run{
		id:        ulid.Make().String(),
		status:    StatusStarting,
		message:   "starting",
		startedAt: time.Now().UTC(),
	}
}

// advance moves the run to the next stage.
func (r *Run) advance(status Status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.message = message
	r.currentStep++
	r.currentFingerprint = ""
}

// setFingerprint records the thread currently being published.
func (r *Run) setFingerprint(fp string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentFingerprint = fp
}

// complete marks the run finished with its final report.
func (r *Run) complete(report *Report, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.status = StatusCompleted
	r.message = message
	r.currentStep = totalSteps
	r.currentFingerprint = ""
	r.finishedAt = &now
	r.report = report
}

// fail marks the run terminally errored.
func (r *Run) fail(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.status = StatusError
	r.message = message
	r.finishedAt = &now
}

// Snapshot returns a copy safe to serialize while the run mutates.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunSnapshot{
		ID:                 r.id,
		Status:             r.status,
		Message:            r.message,
		CurrentStep:        r.currentStep,
		TotalSteps:         totalSteps,
		CurrentFingerprint: r.currentFingerprint,
		StartedAt:          r.startedAt,
		FinishedAt:         r.finishedAt,
		Report:             r.report,
	}
}

// Tracker hands the current run to external observers and single-flights
// syncAll within one process: a second invocation while a run is live fails
// with SYNC_BUSY. There is no cross-process lock; two processes pointed at
// the same state file can still race.
type Tracker struct {
	mu        sync.Mutex
	current   *Run
	retention time.Duration
}

// NewTracker creates a Tracker that keeps finished runs observable for
// retention before clearing them.
func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{retention: retention}
}

// begin registers a new run, or fails with SYNC_BUSY if one is live.
func (t *Tracker) begin() (*Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil && !t.current.Snapshot().Status.Terminal() {
		return nil, errors.NewSyncBusy(t.current.Snapshot().ID)
	}

	run := newRun()
	t.current = run
	return run, nil
}

// release schedules the finished run to be cleared after the retention
// window, so pollers can still read the final report briefly.
func (t *Tracker) release(run *Run) {
	time.AfterFunc(t.retention, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.current == run {
			t.current = nil
		}
	})
}

// Current returns a snapshot of the live or recently finished run.
func (t *Tracker) Current() (RunSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return RunSnapshot{}, false
	}
	return t.current.Snapshot(), true
}
