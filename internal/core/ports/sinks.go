package ports

import (
	"stemfetch/internal/core/domain"
)

// FrameSource is a lazy, finite, non-restartable sequence of decoded frames.
// Next returns io.EOF after the last frame and keeps returning it.
type FrameSource interface {
	Next() (*domain.DecodedFrame, error)
	Close() error
}

// TrackSink is the destination track storage. One handle per track.
type TrackSink interface {
	NewTrack(name string) (TrackHandle, error)
}

// TrackHandle receives the converted sample stream of a single track.
// SetFormat must be called before the first Append; appends arrive in
// decode order as one continuous operation.
type TrackHandle interface {
	SetFormat(p domain.FormatParams) error
	Append(frame *domain.DecodedFrame) error
	Close() error
}

// ProgressSink renders a full snapshot of the progress table. Invoked after
// status mutations; implementations must tolerate concurrent callers.
type ProgressSink interface {
	Render(snapshot []domain.TrackProgress)
}
