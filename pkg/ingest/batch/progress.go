// Package batch parses many transcript files in one run.
package batch

import (
	"sync"
	"time"
)

// Run states reported in ProgressSnapshot.Status.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Progress follows one batch run. It is safe for concurrent use by the
// processor's workers.
type Progress struct {
	mu      sync.Mutex
	total   int
	counts  map[string]int
	done    []string
	current string
	state   string
	started time.Time
	notify  func(ProgressSnapshot)
}

// NewProgress returns a pending tracker for total files.
func NewProgress(total int) *Progress {
	return &Progress{
		total:   total,
		counts:  make(map[string]int, 4),
		state:   RunPending,
		started: time.Now(),
	}
}

// SetOnUpdate registers fn to receive a snapshot after every change. fn
// runs on the goroutine that made the change, after the lock is released.
func (p *Progress) SetOnUpdate(fn func(ProgressSnapshot)) {
	p.mu.Lock()
	p.notify = fn
	p.mu.Unlock()
}

func (p *Progress) Start() {
	p.change(func() {
		p.state = RunRunning
		p.started = time.Now()
	})
}

// SetCurrentFile names the file a worker just picked up.
func (p *Progress) SetCurrentFile(path string) {
	p.change(func() { p.current = path })
}

// Finish counts one file under its outcome (StatusParsed, StatusEmpty,
// StatusSkipped or StatusFailed). Empty paths are counted but not listed.
func (p *Progress) Finish(path, status string) {
	p.change(func() {
		p.counts[status]++
		if path != "" {
			p.done = append(p.done, path)
		}
	})
}

// ProcessedFiles lists finished files in completion order.
func (p *Progress) ProcessedFiles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.done...)
}

// Complete ends the run as completed or failed.
func (p *Progress) Complete(success bool) {
	state := RunFailed
	if success {
		state = RunCompleted
	}
	p.change(func() { p.state = state })
}

func (p *Progress) Cancel() {
	p.change(func() { p.state = RunCancelled })
}

func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Progress) change(fn func()) {
	p.mu.Lock()
	fn()
	notify := p.notify
	var snap ProgressSnapshot
	if notify != nil {
		snap = p.snapshot()
	}
	p.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

// snapshot requires p.mu.
func (p *Progress) snapshot() ProgressSnapshot {
	processed := 0
	for _, n := range p.counts {
		processed += n
	}
	return ProgressSnapshot{
		TotalFiles:     p.total,
		ProcessedCount: processed,
		ParsedCount:    p.counts[StatusParsed],
		EmptyCount:     p.counts[StatusEmpty],
		SkippedCount:   p.counts[StatusSkipped],
		FailedCount:    p.counts[StatusFailed],
		CurrentFile:    p.current,
		Status:         p.state,
		StartedAt:      p.started,
		Elapsed:        time.Since(p.started),
	}
}

// ProgressSnapshot is a point-in-time copy of a Progress.
type ProgressSnapshot struct {
	TotalFiles     int
	ProcessedCount int
	ParsedCount    int
	EmptyCount     int
	SkippedCount   int
	FailedCount    int
	CurrentFile    string
	Status         string
	StartedAt      time.Time
	Elapsed        time.Duration
}

func (s ProgressSnapshot) PercentComplete() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return 100 * float64(s.ProcessedCount) / float64(s.TotalFiles)
}

// Remaining extrapolates the time left from the average time per finished
// file. ok is false until the first file finishes.
func (s ProgressSnapshot) Remaining() (d time.Duration, ok bool) {
	if s.ProcessedCount == 0 {
		return 0, false
	}
	left := max(s.TotalFiles-s.ProcessedCount, 0)
	return s.Elapsed / time.Duration(s.ProcessedCount) * time.Duration(left), true
}

func (s ProgressSnapshot) IsComplete() bool {
	return s.ProcessedCount >= s.TotalFiles
}

// IsSuccess reports a completed run without failed files.
func (s ProgressSnapshot) IsSuccess() bool {
	return s.Status == RunCompleted && s.FailedCount == 0
}
