package services

import (
	"sync"

	"stemfetch/internal/core/domain"
	"stemfetch/internal/core/ports"

	"golang.org/x/time/rate"
)

// ProgressTable is the process-wide per-track status table. Each entry is
// mutated only by its owning track loader; readers take snapshots. Every
// mutation pushes a full snapshot to the sink: status transitions always,
// duration-only updates throttled.
type ProgressTable struct {
	mu      sync.Mutex
	entries []domain.TrackProgress

	sink    ports.ProgressSink
	limiter *rate.Limiter
}

// NewProgressTable builds the table with one Waiting entry per descriptor.
// rendersPerSecond throttles duration-only re-renders; <= 0 disables the
// throttle.
func NewProgressTable(tracks []domain.TrackDescriptor, sink ports.ProgressSink, rendersPerSecond float64) *ProgressTable {
	entries := make([]domain.TrackProgress, len(tracks))
	for i, td := range tracks {
		entries[i] = domain.TrackProgress{
			Index:  td.Index,
			Name:   td.Name,
			Status: domain.StatusWaiting,
		}
	}

	var limiter *rate.Limiter
	if rendersPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(rendersPerSecond), 1)
	}
	return &ProgressTable{entries: entries, sink: sink, limiter: limiter}
}

// SetStatus transitions one track's status. Entering Loading resets the
// accumulated duration to zero.
func (t *ProgressTable) SetStatus(index int, status domain.TrackStatus) {
	t.mu.Lock()
	e := t.entry(index)
	if e == nil {
		t.mu.Unlock()
		return
	}
	e.Status = status
	if status == domain.StatusLoading {
		e.Duration = 0
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.render(snap, true)
}

// AddDuration accumulates decoded seconds for a track in Loading state.
func (t *ProgressTable) AddDuration(index int, seconds float64) {
	t.mu.Lock()
	e := t.entry(index)
	if e == nil || e.Status != domain.StatusLoading || seconds < 0 {
		t.mu.Unlock()
		return
	}
	e.Duration += seconds
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.render(snap, false)
}

// Snapshot returns a copy of the table safe to read from any goroutine.
func (t *ProgressTable) Snapshot() []domain.TrackProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *ProgressTable) entry(index int) *domain.TrackProgress {
	if index < 1 || index > len(t.entries) {
		return nil
	}
	return &t.entries[index-1]
}

func (t *ProgressTable) snapshotLocked() []domain.TrackProgress {
	snap := make([]domain.TrackProgress, len(t.entries))
	copy(snap, t.entries)
	return snap
}

func (t *ProgressTable) render(snap []domain.TrackProgress, force bool) {
	if t.sink == nil {
		return
	}
	if !force && t.limiter != nil && !t.limiter.Allow() {
		return
	}
	t.sink.Render(snap)
}
