package decode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"stemfetch/internal/core/domain"
	"stemfetch/internal/core/ports"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"go.uber.org/zap"
	"gopkg.in/hraban/opus.v2"
)

const (
	// Opus always decodes at its native rate.
	opusSampleRate = 48000
	// Largest opus frame is 120 ms: 5760 samples per channel at 48 kHz.
	maxFrameSamples = 5760

	DefaultPrimeBytes  = 1 << 20
	DefaultPacketBatch = 16
)

var oggTagsMagic = []byte("OpusTags")

// Options tunes a decode stage.
type Options struct {
	// PrimeBytes is the initial burst pulled from the input before the
	// container is opened, so the demuxer can probe the format.
	PrimeBytes int
	// PacketBatch bounds how many demuxed packets one decode turn
	// requests. Count-bounded, not byte-bounded.
	PacketBatch int
	Logger      *zap.SugaredLogger
}

// Factory builds decode stages; it implements ports.StreamDecoder.
type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

func (f *Factory) NewStream(r io.Reader) (ports.FrameSource, error) {
	return NewStage(r, f.opts)
}

// Primer is implemented by inputs that can buffer an initial burst.
type Primer interface {
	Prime(n int) error
}

// Stage incrementally demuxes an Ogg container, decodes its single Opus
// elementary stream and converts every decoded frame to the canonical
// sample format. It is a lazy, finite, non-restartable frame sequence.
//
// Format parameters are fixed by the first decoded frame and never change
// for the remaining lifetime of the stage.
type Stage struct {
	ogg      *oggreader.OggReader
	dec      *opus.Decoder
	conv     *converter
	channels int
	batch    int

	params     domain.FormatParams
	haveParams bool

	pcm    []float32
	frames []*domain.DecodedFrame
	eof    bool
	done   bool

	logger *zap.SugaredLogger
}

// NewStage opens the container found on r. If r implements Primer, an
// initial burst is buffered first so the demuxer sees enough data to
// detect the format. An input that ends before any byte arrives is a
// valid empty stream: the stage yields no frames and no error.
func NewStage(r io.Reader, opts Options) (*Stage, error) {
	prime := opts.PrimeBytes
	if prime <= 0 {
		prime = DefaultPrimeBytes
	}
	batch := opts.PacketBatch
	if batch <= 0 {
		batch = DefaultPacketBatch
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if p, ok := r.(Primer); ok {
		if err := p.Prime(prime); err != nil {
			return nil, fmt.Errorf("prime input: %w", err)
		}
	}

	br := bufio.NewReaderSize(r, 64<<10)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return &Stage{done: true, batch: batch, logger: logger}, nil
		}
		return nil, fmt.Errorf("probe input: %w", err)
	}

	ogg, hdr, err := oggreader.NewWith(br)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}

	channels := int(hdr.Channels)
	if channels <= 0 {
		channels = 1
	}
	dec, err := opus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("init opus decoder: %w", err)
	}

	return &Stage{
		ogg:      ogg,
		dec:      dec,
		channels: channels,
		batch:    batch,
		pcm:      make([]float32, maxFrameSamples*channels),
		logger:   logger,
	}, nil
}

// Params returns the track's format parameters and whether they have been
// fixed yet. They become available with the first decoded frame.
func (s *Stage) Params() (domain.FormatParams, bool) {
	return s.params, s.haveParams
}

// Next yields the next converted frame, suspending while the input waits
// for data. It returns io.EOF after the last frame and keeps returning it.
func (s *Stage) Next() (*domain.DecodedFrame, error) {
	for {
		if len(s.frames) > 0 {
			f := s.frames[0]
			s.frames = s.frames[1:]
			return f, nil
		}
		if s.done || s.eof {
			s.done = true
			return nil, io.EOF
		}
		// A batch may legitimately yield zero frames (header pages,
		// short reads): keep filling until frames arrive or the input
		// is exhausted.
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
}

// fill requests one bounded batch of packets from the demuxer and decodes
// them. The demuxer pulls more input bytes itself when its buffer runs dry.
func (s *Stage) fill() error {
	for i := 0; i < s.batch; i++ {
		payload, _, err := s.ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			s.eof = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("demux page: %w", err)
		}
		if len(payload) == 0 || bytes.HasPrefix(payload, oggTagsMagic) {
			continue
		}

		frame, err := s.decodePacket(payload)
		if err != nil {
			return err
		}
		if frame != nil {
			s.frames = append(s.frames, frame)
		}
	}
	return nil
}

func (s *Stage) decodePacket(pkt []byte) (*domain.DecodedFrame, error) {
	n, err := s.dec.DecodeFloat32(pkt, s.pcm)
	if err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	if !s.haveParams {
		// First non-empty decode fixes the track's format; the
		// conversion stage is built here, once.
		s.params = domain.FormatParams{
			SampleRate:   opusSampleRate,
			Channels:     s.channels,
			SampleFormat: domain.SampleFormatS16,
		}
		s.haveParams = true
		s.conv = &converter{}
		s.logger.Debugw("stream format fixed",
			"sample_rate", s.params.SampleRate,
			"channels", s.params.Channels,
		)
	}

	return &domain.DecodedFrame{
		Data:        s.conv.convert(s.pcm[:n*s.channels]),
		SampleCount: n,
		Params:      s.params,
	}, nil
}

// Close releases the demuxer, decoder and conversion stage.
func (s *Stage) Close() error {
	s.done = true
	s.frames = nil
	s.ogg = nil
	s.dec = nil
	s.conv = nil
	return nil
}
