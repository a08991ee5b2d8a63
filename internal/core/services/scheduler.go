package services

import (
	"context"
	"runtime"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// maxWorkers caps the number of track loaders logically in flight,
// whatever the host's parallelism.
const maxWorkers = 8

// DefaultWorkerBound returns min(available parallelism, 8).
func DefaultWorkerBound() int {
	n := runtime.NumCPU()
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Scheduler runs track loaders over a fixed worker budget. While queued
// tracks remain, the in-flight set is kept at the bound; whichever loader
// completes first is replaced first. The scheduler itself never fails
// early: it attempts every track and returns the aggregated per-track
// failures at the end.
type Scheduler struct {
	loader TrackLoader
	bound  int
	logger *zap.SugaredLogger
}

// NewScheduler builds a scheduler with the given worker bound; bound <= 0
// selects DefaultWorkerBound.
func NewScheduler(loader TrackLoader, bound int, logger *zap.SugaredLogger) *Scheduler {
	if bound <= 0 {
		bound = DefaultWorkerBound()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{loader: loader, bound: bound, logger: logger}
}

// RunAll loads every job, at most s.bound concurrently. Completion order
// is not enqueue order; only first-completed-first-replaced is guaranteed.
// The returned error combines all per-track failures, nil when every
// track loaded.
func (s *Scheduler) RunAll(ctx context.Context, jobs []TrackJob) error {
	if len(jobs) == 0 {
		return nil
	}

	s.logger.Infow("starting track loaders", "tracks", len(jobs), "workers", s.bound)

	type result struct {
		job TrackJob
		err error
	}
	results := make(chan result)

	inflight, next := 0, 0
	start := func(job TrackJob) {
		inflight++
		go func() {
			results <- result{job: job, err: s.loader.Load(ctx, job)}
		}()
	}

	for next < len(jobs) && inflight < s.bound {
		start(jobs[next])
		next++
	}

	var failures error
	for inflight > 0 {
		r := <-results
		inflight--
		if r.err != nil {
			failures = multierr.Append(failures, r.err)
		}
		if next < len(jobs) {
			start(jobs[next])
			next++
		}
	}

	if n := len(multierr.Errors(failures)); n > 0 {
		s.logger.Warnw("finished with failed tracks", "failed", n, "total", len(jobs))
	} else {
		s.logger.Infow("all tracks loaded", "tracks", len(jobs))
	}
	return failures
}
