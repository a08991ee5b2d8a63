package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stemfetch/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// countingLoader tracks concurrency and fails the tracks it is told to.
type countingLoader struct {
	mu         sync.Mutex
	inflight   int32
	peak       int32
	loaded     []int
	failTracks map[int]error
	delay      time.Duration
}

func (l *countingLoader) Load(ctx context.Context, job TrackJob) error {
	cur := atomic.AddInt32(&l.inflight, 1)
	defer atomic.AddInt32(&l.inflight, -1)

	l.mu.Lock()
	if cur > l.peak {
		l.peak = cur
	}
	l.loaded = append(l.loaded, job.Desc.Index)
	l.mu.Unlock()

	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if err, ok := l.failTracks[job.Desc.Index]; ok {
		return err
	}
	return nil
}

func makeJobs(n int) []TrackJob {
	jobs := make([]TrackJob, n)
	for i := range jobs {
		jobs[i] = TrackJob{Desc: domain.TrackDescriptor{Index: i + 1, Name: fmt.Sprintf("track-%d", i+1)}}
	}
	return jobs
}

func TestSchedulerRunsEveryJob(t *testing.T) {
	loader := &countingLoader{}
	s := NewScheduler(loader, 3, nil)

	require.NoError(t, s.RunAll(context.Background(), makeJobs(10)))
	assert.Len(t, loader.loaded, 10)
}

func TestSchedulerHonorsWorkerBound(t *testing.T) {
	loader := &countingLoader{delay: 20 * time.Millisecond}
	s := NewScheduler(loader, 2, nil)

	require.NoError(t, s.RunAll(context.Background(), makeJobs(8)))
	assert.LessOrEqual(t, loader.peak, int32(2))
}

func TestSchedulerAggregatesFailuresWithoutStopping(t *testing.T) {
	loader := &countingLoader{
		failTracks: map[int]error{
			2: &domain.LoadError{Track: 2, Kind: domain.FailureTransport},
			5: &domain.LoadError{Track: 5, Kind: domain.FailureDecode},
		},
	}
	s := NewScheduler(loader, 4, nil)

	err := s.RunAll(context.Background(), makeJobs(6))
	require.Error(t, err)

	// Failures do not prevent the other tracks from loading.
	assert.Len(t, loader.loaded, 6)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestSchedulerEmptyJobList(t *testing.T) {
	s := NewScheduler(&countingLoader{}, 4, nil)
	assert.NoError(t, s.RunAll(context.Background(), nil))
}

func TestDefaultWorkerBound(t *testing.T) {
	bound := DefaultWorkerBound()
	assert.GreaterOrEqual(t, bound, 1)
	assert.LessOrEqual(t, bound, maxWorkers)
}
