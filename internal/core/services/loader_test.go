package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"stemfetch/internal/core/domain"
	"stemfetch/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = domain.FormatParams{
	SampleRate:   48000,
	Channels:     1,
	SampleFormat: domain.SampleFormatS16,
}

type fakeStream struct{ closed bool }

func (s *fakeStream) Read(p []byte) (int, error) { return 0, io.EOF }
func (s *fakeStream) Prime(n int) error          { return nil }
func (s *fakeStream) Close() error               { s.closed = true; return nil }

type fakeDialer struct {
	err    error
	stream *fakeStream
}

func (d *fakeDialer) OpenTrack(ctx context.Context, rec domain.Recording, trackIndex int) (ports.ChunkStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.stream == nil {
		d.stream = &fakeStream{}
	}
	return d.stream, nil
}

// fakeSource yields a fixed number of frames, then finErr (io.EOF for a
// clean end).
type fakeSource struct {
	frames int
	finErr error
}

func (s *fakeSource) Next() (*domain.DecodedFrame, error) {
	if s.frames == 0 {
		return nil, s.finErr
	}
	s.frames--
	return &domain.DecodedFrame{
		Data:        make([]int16, 960),
		SampleCount: 960,
		Params:      testParams,
	}, nil
}

func (s *fakeSource) Close() error { return nil }

type fakeDecoder struct {
	err    error
	source *fakeSource
}

func (d *fakeDecoder) NewStream(r io.Reader) (ports.FrameSource, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.source, nil
}

type fakeHandle struct {
	params    *domain.FormatParams
	appended  int
	appendErr error
	closed    int
}

func (h *fakeHandle) SetFormat(p domain.FormatParams) error {
	h.params = &p
	return nil
}

func (h *fakeHandle) Append(frame *domain.DecodedFrame) error {
	if h.appendErr != nil {
		return h.appendErr
	}
	h.appended++
	return nil
}

func (h *fakeHandle) Close() error {
	h.closed++
	return nil
}

func newTestLoader(dialer ports.ChunkDialer, decoder ports.StreamDecoder) (*Loader, *ProgressTable) {
	descriptors := []domain.TrackDescriptor{{Index: 1, Name: "alice"}}
	progress := NewProgressTable(descriptors, nil, 0)
	rec := domain.Recording{ID: "rec-1", Key: "secret"}
	return NewLoader(rec, dialer, decoder, progress, nil, nil), progress
}

func testJob(handle *fakeHandle) TrackJob {
	return TrackJob{
		Desc:   domain.TrackDescriptor{Index: 1, Name: "alice"},
		Handle: handle,
	}
}

func TestLoaderSuccess(t *testing.T) {
	decoder := &fakeDecoder{source: &fakeSource{frames: 10, finErr: io.EOF}}
	loader, progress := newTestLoader(&fakeDialer{}, decoder)
	handle := &fakeHandle{}

	require.NoError(t, loader.Load(context.Background(), testJob(handle)))

	assert.Equal(t, 10, handle.appended)
	require.NotNil(t, handle.params)
	assert.Equal(t, testParams, *handle.params)
	assert.Equal(t, 1, handle.closed)

	snap := progress.Snapshot()
	assert.Equal(t, domain.StatusFinished, snap[0].Status)
	assert.InDelta(t, 0.2, snap[0].Duration, 1e-9)
}

func TestLoaderEmptyTrackSucceeds(t *testing.T) {
	decoder := &fakeDecoder{source: &fakeSource{frames: 0, finErr: io.EOF}}
	loader, progress := newTestLoader(&fakeDialer{}, decoder)
	handle := &fakeHandle{}

	require.NoError(t, loader.Load(context.Background(), testJob(handle)))

	// No frames means the format was never fixed and Loading never entered.
	assert.Nil(t, handle.params)
	assert.Zero(t, handle.appended)
	assert.Equal(t, 1, handle.closed)
	assert.Equal(t, domain.StatusFinished, progress.Snapshot()[0].Status)
}

func TestLoaderRejectedHandshakeIsProtocolFailure(t *testing.T) {
	dialer := &fakeDialer{err: fmt.Errorf("%w: got garbage", domain.ErrUnexpectedHandshake)}
	loader, progress := newTestLoader(dialer, &fakeDecoder{})
	handle := &fakeHandle{}

	err := loader.Load(context.Background(), testJob(handle))
	require.Error(t, err)

	le, ok := domain.AsLoadError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureProtocol, le.Kind)
	assert.Equal(t, 1, le.Track)
	assert.Equal(t, domain.StatusFailed, progress.Snapshot()[0].Status)
}

func TestLoaderDialFailureIsTransport(t *testing.T) {
	dialer := &fakeDialer{err: fmt.Errorf("%w: connection refused", domain.ErrConnectionLost)}
	loader, _ := newTestLoader(dialer, &fakeDecoder{})

	err := loader.Load(context.Background(), testJob(&fakeHandle{}))
	le, ok := domain.AsLoadError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureTransport, le.Kind)
}

func TestLoaderMidStreamDropIsTransport(t *testing.T) {
	decoder := &fakeDecoder{source: &fakeSource{
		frames: 3,
		finErr: fmt.Errorf("%w: reset by peer", domain.ErrConnectionLost),
	}}
	loader, progress := newTestLoader(&fakeDialer{}, decoder)
	handle := &fakeHandle{}

	err := loader.Load(context.Background(), testJob(handle))
	le, ok := domain.AsLoadError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureTransport, le.Kind)

	// Frames decoded before the drop were appended and kept.
	assert.Equal(t, 3, handle.appended)
	assert.GreaterOrEqual(t, handle.closed, 1)
	assert.Equal(t, domain.StatusFailed, progress.Snapshot()[0].Status)
}

func TestLoaderCorruptStreamIsDecodeFailure(t *testing.T) {
	decoder := &fakeDecoder{source: &fakeSource{
		frames: 1,
		finErr: errors.New("demux page: invalid page checksum"),
	}}
	loader, _ := newTestLoader(&fakeDialer{}, decoder)

	err := loader.Load(context.Background(), testJob(&fakeHandle{}))
	le, ok := domain.AsLoadError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureDecode, le.Kind)
}

func TestLoaderAppendFailureIsStorage(t *testing.T) {
	decoder := &fakeDecoder{source: &fakeSource{frames: 5, finErr: io.EOF}}
	loader, _ := newTestLoader(&fakeDialer{}, decoder)
	handle := &fakeHandle{appendErr: errors.New("disk full")}

	err := loader.Load(context.Background(), testJob(handle))
	le, ok := domain.AsLoadError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureStorage, le.Kind)
}

func TestLoaderDecoderSetupFailure(t *testing.T) {
	decoder := &fakeDecoder{err: errors.New("open container: not an ogg stream")}
	loader, _ := newTestLoader(&fakeDialer{}, decoder)

	err := loader.Load(context.Background(), testJob(&fakeHandle{}))
	le, ok := domain.AsLoadError(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureDecode, le.Kind)
}
