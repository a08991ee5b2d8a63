package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"stemfetch/internal/core/domain"
	"stemfetch/internal/core/ports"
	"stemfetch/pkg/tracing"

	"go.uber.org/zap"
)

// TrackJob pairs a track descriptor with its destination handle. Handles
// are created once, at enumeration time, from the remote user list.
type TrackJob struct {
	Desc   domain.TrackDescriptor
	Handle ports.TrackHandle
}

// TrackLoader loads one track end to end.
type TrackLoader interface {
	Load(ctx context.Context, job TrackJob) error
}

// Loader orchestrates one chunk channel, pull reader and decode stage per
// track and forwards every decoded frame to the destination handle as one
// continuous append. Failures are isolated per track.
type Loader struct {
	rec      domain.Recording
	dialer   ports.ChunkDialer
	decoder  ports.StreamDecoder
	progress *ProgressTable
	metrics  ports.Metrics
	logger   *zap.SugaredLogger
}

func NewLoader(
	rec domain.Recording,
	dialer ports.ChunkDialer,
	decoder ports.StreamDecoder,
	progress *ProgressTable,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *Loader {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Loader{
		rec:      rec,
		dialer:   dialer,
		decoder:  decoder,
		progress: progress,
		metrics:  metrics,
		logger:   logger,
	}
}

// Load drives one track to completion. On failure the track is marked
// Failed and a classified LoadError is returned; partial data already
// appended is retained.
func (l *Loader) Load(ctx context.Context, job TrackJob) error {
	ctx, span := tracing.TraceTrackLoad(ctx, job.Desc.Index, job.Desc.Name)
	defer span.End()

	start := time.Now()
	l.metrics.TrackStarted()

	kind, err := l.load(ctx, job)
	if err != nil {
		// Partial data already appended is retained, not rolled back.
		if cerr := job.Handle.Close(); cerr != nil {
			l.logger.Warnw("closing track after failure",
				"track", job.Desc.Index, "error", cerr)
		}
		l.progress.SetStatus(job.Desc.Index, domain.StatusFailed)
		l.metrics.TrackCompleted(string(kind), time.Since(start))
		tracing.RecordError(ctx, err)
		l.logger.Errorw("track load failed",
			"track", job.Desc.Index,
			"name", job.Desc.Name,
			"kind", kind,
			"error", err,
		)
		return &domain.LoadError{
			Track: job.Desc.Index,
			Name:  job.Desc.Name,
			Kind:  kind,
			Err:   err,
		}
	}

	l.progress.SetStatus(job.Desc.Index, domain.StatusFinished)
	l.metrics.TrackCompleted("success", time.Since(start))
	l.logger.Infow("track loaded",
		"track", job.Desc.Index,
		"name", job.Desc.Name,
		"elapsed", time.Since(start),
	)
	return nil
}

func (l *Loader) load(ctx context.Context, job TrackJob) (domain.FailureKind, error) {
	stream, err := l.dialer.OpenTrack(ctx, l.rec, job.Desc.Index)
	if err != nil {
		return classifyChannelError(err), fmt.Errorf("open channel: %w", err)
	}
	defer stream.Close()

	// Handshake acknowledged: connected, not yet decoding.
	l.progress.SetStatus(job.Desc.Index, domain.StatusNotLoading)
	tracing.AddEvent(ctx, "handshake.acknowledged")

	src, err := l.decoder.NewStream(stream)
	if err != nil {
		return classifyStreamError(err), fmt.Errorf("open decode stage: %w", err)
	}
	defer src.Close()

	first := true
	for {
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return classifyStreamError(err), fmt.Errorf("decode: %w", err)
		}

		if first {
			if err := job.Handle.SetFormat(frame.Params); err != nil {
				return domain.FailureStorage, fmt.Errorf("set track format: %w", err)
			}
			l.progress.SetStatus(job.Desc.Index, domain.StatusLoading)
			tracing.AddEvent(ctx, "frame.first")
			first = false
		}

		if err := job.Handle.Append(frame); err != nil {
			return domain.FailureStorage, fmt.Errorf("append frame: %w", err)
		}

		seconds := frame.Duration()
		l.progress.AddDuration(job.Desc.Index, seconds)
		l.metrics.FramesDecoded(seconds)
	}

	// An empty stream is a successful zero-duration track; it never
	// enters Loading.
	if err := job.Handle.Close(); err != nil {
		return domain.FailureStorage, fmt.Errorf("close track: %w", err)
	}
	return "", nil
}

// classifyChannelError maps channel setup failures onto the error taxonomy:
// a rejected handshake is a protocol violation, everything else on the way
// to an open channel is transport.
func classifyChannelError(err error) domain.FailureKind {
	switch {
	case errors.Is(err, domain.ErrUnexpectedHandshake),
		errors.Is(err, domain.ErrMalformedFrame):
		return domain.FailureProtocol
	default:
		return domain.FailureTransport
	}
}

// classifyStreamError maps mid-stream failures: a dropped connection
// surfacing through the pull reader is transport, a malformed frame is
// protocol, anything else is a demux/codec failure.
func classifyStreamError(err error) domain.FailureKind {
	switch {
	case errors.Is(err, domain.ErrConnectionLost):
		return domain.FailureTransport
	case errors.Is(err, domain.ErrMalformedFrame):
		return domain.FailureProtocol
	default:
		return domain.FailureDecode
	}
}
