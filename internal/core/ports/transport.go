package ports

import (
	"context"
	"io"

	"stemfetch/internal/core/domain"
)

// ChunkStream is the pull side of one track's chunk channel. Read suspends
// while no chunk is queued and returns io.EOF once the terminal frame has
// been received and the queue is drained.
type ChunkStream interface {
	io.Reader
	// Prime buffers up to n bytes ahead of the next Read, so a demuxer can
	// probe the container format from a single burst. Returning early at
	// end-of-stream is not an error.
	Prime(n int) error
	Close() error
}

// ChunkDialer opens the chunk channel for one track of a recording.
// OpenTrack returns only after the handshake has been acknowledged.
type ChunkDialer interface {
	OpenTrack(ctx context.Context, rec domain.Recording, trackIndex int) (ChunkStream, error)
}

// StreamDecoder turns a byte-oriented input source into decoded frames.
type StreamDecoder interface {
	NewStream(r io.Reader) (FrameSource, error)
}
