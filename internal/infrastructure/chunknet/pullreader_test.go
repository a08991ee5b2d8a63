package chunknet

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullReaderReadsPushedBuffers(t *testing.T) {
	r := NewPullReader(4)

	assert.True(t, r.push([]byte("hello ")))
	assert.True(t, r.push([]byte("world")))
	r.closeQueue(nil)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestPullReaderSplitsLargeBufferAcrossReads(t *testing.T) {
	r := NewPullReader(1)
	r.push([]byte("abcdef"))
	r.closeQueue(nil)

	p := make([]byte, 4)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p[:n]))

	n, err = r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(p[:n]))
}

func TestPullReaderEOFIsSticky(t *testing.T) {
	r := NewPullReader(1)
	r.closeQueue(nil)

	p := make([]byte, 1)
	for i := 0; i < 3; i++ {
		_, err := r.Read(p)
		assert.Equal(t, io.EOF, err)
	}
}

func TestPullReaderSurfacesAbnormalEnd(t *testing.T) {
	cause := errors.New("connection reset")
	r := NewPullReader(1)
	r.push([]byte("partial"))
	r.closeQueue(cause)

	data, err := io.ReadAll(r)
	assert.Equal(t, "partial", string(data))
	assert.ErrorIs(t, err, cause)
}

func TestPullReaderPrimeBuffersAhead(t *testing.T) {
	r := NewPullReader(4)
	r.push([]byte("ab"))
	r.push([]byte("cd"))
	r.push([]byte("ef"))

	require.NoError(t, r.Prime(5))

	p := make([]byte, 6)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(p[:n]))
}

func TestPullReaderPrimePastCleanEnd(t *testing.T) {
	r := NewPullReader(1)
	r.push([]byte("xy"))
	r.closeQueue(nil)

	// Fewer bytes than requested with a clean end is fine.
	require.NoError(t, r.Prime(1024))

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "xy", string(data))
}

func TestPullReaderPrimePastAbnormalEnd(t *testing.T) {
	cause := errors.New("connection reset")
	r := NewPullReader(1)
	r.closeQueue(cause)

	assert.ErrorIs(t, r.Prime(1024), cause)
}

func TestPullReaderCloseUnblocksProducer(t *testing.T) {
	r := NewPullReader(1)
	require.True(t, r.push([]byte("fill")))

	pushed := make(chan bool, 1)
	go func() {
		pushed <- r.push([]byte("blocked"))
	}()

	r.Close()

	select {
	case ok := <-pushed:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after Close")
	}
}
