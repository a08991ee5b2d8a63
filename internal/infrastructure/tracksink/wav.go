package tracksink

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"stemfetch/internal/core/domain"
	"stemfetch/internal/core/ports"

	"go.uber.org/zap"
)

const wavHeaderLen = 44

// WAVSink materializes each track as a RIFF/WAVE PCM file under a single
// output directory. Format fields come from the first frame's parameters;
// the header sizes are patched on Close.
type WAVSink struct {
	dir    string
	logger *zap.SugaredLogger

	mu    sync.Mutex
	names map[string]int
}

func NewWAVSink(dir string, logger *zap.SugaredLogger) (*WAVSink, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &WAVSink{dir: dir, logger: logger, names: make(map[string]int)}, nil
}

func (s *WAVSink) NewTrack(name string) (ports.TrackHandle, error) {
	path := filepath.Join(s.dir, s.uniqueName(sanitizeName(name))+".wav")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create track file: %w", err)
	}
	s.logger.Debugw("track file created", "name", name, "path", path)
	return &wavTrack{f: f}, nil
}

// uniqueName suffixes repeated display names. Duplicate names are legal
// (only a non-zero discriminator disambiguates users), and two tracks must
// never share a file.
func (s *WAVSink) uniqueName(base string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.names[base]
	s.names[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n+1)
}

type wavTrack struct {
	f         *os.File
	params    domain.FormatParams
	hasFormat bool
	dataBytes int64
	closed    bool
}

// SetFormat fixes the track's format fields. Must precede the first
// Append; the format never changes afterwards.
func (t *wavTrack) SetFormat(p domain.FormatParams) error {
	if t.hasFormat {
		if p != t.params {
			return fmt.Errorf("format already set to %+v", t.params)
		}
		return nil
	}
	t.params = p
	t.hasFormat = true

	// Placeholder header; sizes are patched on Close.
	return t.writeHeader()
}

func (t *wavTrack) Append(frame *domain.DecodedFrame) error {
	if !t.hasFormat {
		return fmt.Errorf("append before format was set")
	}

	buf := make([]byte, len(frame.Data)*2)
	for i, s := range frame.Data {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	n, err := t.f.Write(buf)
	t.dataBytes += int64(n)
	if err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return nil
}

func (t *wavTrack) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	if t.hasFormat {
		if err := t.patchSizes(); err != nil {
			t.f.Close()
			return err
		}
	}
	return t.f.Close()
}

func (t *wavTrack) writeHeader() error {
	h := make([]byte, wavHeaderLen)
	copy(h[0:4], "RIFF")
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(t.params.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(t.params.SampleRate))
	byteRate := uint32(t.params.SampleRate * t.params.Channels * 2)
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], uint16(t.params.Channels*2)) // block align
	binary.LittleEndian.PutUint16(h[34:36], 16)                          // bits per sample
	copy(h[36:40], "data")

	if _, err := t.f.Write(h); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	return nil
}

func (t *wavTrack) patchSizes() error {
	var sz [4]byte

	binary.LittleEndian.PutUint32(sz[:], uint32(36+t.dataBytes))
	if _, err := t.f.WriteAt(sz[:], 4); err != nil {
		return fmt.Errorf("patch riff size: %w", err)
	}

	binary.LittleEndian.PutUint32(sz[:], uint32(t.dataBytes))
	if _, err := t.f.WriteAt(sz[:], 40); err != nil {
		return fmt.Errorf("patch data size: %w", err)
	}
	return nil
}

// sanitizeName keeps display names filesystem-safe without losing the
// discriminator suffix.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"\x00", "_",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		return "track"
	}
	return cleaned
}
