package chunknet

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"stemfetch/internal/core/domain"
	"stemfetch/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	seqHeaderLen = 4
	ackFrameLen  = 8
)

// handshakeRequest selects one track of a recording and authorizes the
// connection. Sent once, as the first client message.
type handshakeRequest struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Track int    `json:"track"`
}

// handshakeOK is the fixed success marker the server sends as its first
// message after track selection. Anything else is a protocol violation
// for that track only.
var handshakeOK = []byte(`{"ok":true}`)

// DialerConfig tunes per-track channel connections.
type DialerConfig struct {
	SocketURL        string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	QueueDepth       int
}

// Dialer opens one chunk channel per track.
type Dialer struct {
	cfg     DialerConfig
	metrics ports.Metrics
	logger  *zap.SugaredLogger
}

func NewDialer(cfg DialerConfig, metrics ports.Metrics, logger *zap.SugaredLogger) *Dialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dialer{cfg: cfg, metrics: metrics, logger: logger}
}

// OpenTrack dials the socket endpoint, performs the handshake for the
// given 1-based track index and returns the channel's pull side. The
// returned stream is ready: the handshake has been acknowledged.
func (d *Dialer) OpenTrack(ctx context.Context, rec domain.Recording, trackIndex int) (ports.ChunkStream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.cfg.SocketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrConnectionLost, d.cfg.SocketURL, err)
	}

	conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout))
	req := handshakeRequest{ID: string(rec.ID), Key: rec.Key, Track: trackIndex}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send handshake: %v", domain.ErrConnectionLost, err)
	}

	conn.SetReadDeadline(time.Now().Add(d.cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: read handshake ack: %v", domain.ErrConnectionLost, err)
	}
	if !bytes.Equal(bytes.TrimSpace(msg), handshakeOK) {
		conn.Close()
		d.logger.Warnw("handshake not acknowledged",
			"track", trackIndex,
			"got", truncateForLog(msg),
		)
		return nil, fmt.Errorf("%w: got %q", domain.ErrUnexpectedHandshake, truncateForLog(msg))
	}
	conn.SetReadDeadline(time.Time{})

	ch := newChannel(conn, d.cfg, trackIndex, d.metrics, d.logger)
	go ch.receiveLoop()
	return ch, nil
}

// Channel owns one track's websocket connection. The receive loop
// acknowledges every accepted chunk frame and pushes payloads into the
// embedded pull reader; the terminal zero-payload frame closes the
// connection from the receiving side.
type Channel struct {
	*PullReader

	conn         *websocket.Conn
	writeTimeout time.Duration
	track        int
	ready        atomic.Bool
	closing      atomic.Bool
	metrics      ports.Metrics
	logger       *zap.SugaredLogger
}

func newChannel(conn *websocket.Conn, cfg DialerConfig, track int, metrics ports.Metrics, logger *zap.SugaredLogger) *Channel {
	c := &Channel{
		PullReader:   NewPullReader(cfg.QueueDepth),
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		track:        track,
		metrics:      metrics,
		logger:       logger,
	}
	c.ready.Store(true)
	return c
}

// Ready reports whether the handshake has been acknowledged.
func (c *Channel) Ready() bool {
	return c.ready.Load()
}

func (c *Channel) receiveLoop() {
	for {
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", domain.ErrConnectionLost, err))
			return
		}
		if mt != websocket.BinaryMessage {
			c.fail(fmt.Errorf("%w: unexpected message type %d", domain.ErrMalformedFrame, mt))
			return
		}
		if len(msg) < seqHeaderLen {
			c.fail(fmt.Errorf("%w: %d byte frame", domain.ErrMalformedFrame, len(msg)))
			return
		}

		seq := binary.LittleEndian.Uint32(msg[:seqHeaderLen])
		payload := msg[seqHeaderLen:]
		if len(payload) == 0 {
			// Terminal frame: the receiver closes the channel.
			c.finish()
			return
		}

		c.ack(seq)
		c.metrics.ChunkReceived(len(payload))
		if !c.push(payload) {
			return
		}
	}
}

// ack echoes the sequence number of an accepted chunk frame. Chunks
// arriving while the channel is closing are not acknowledged: writing to a
// half-closed connection would race the close.
func (c *Channel) ack(seq uint32) {
	if c.closing.Load() {
		return
	}

	frame := make([]byte, ackFrameLen)
	binary.LittleEndian.PutUint32(frame[seqHeaderLen:], seq)

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.logger.Warnw("ack write failed", "track", c.track, "seq", seq, "error", err)
		return
	}
	c.metrics.AckSent()
}

func (c *Channel) finish() {
	c.closing.Store(true)
	c.closeQueue(nil)
	c.conn.Close()
}

func (c *Channel) fail(err error) {
	if c.closing.Load() {
		// The close raced the read; not an abnormal end.
		c.closeQueue(nil)
		return
	}
	c.logger.Debugw("chunk channel ended abnormally", "track", c.track, "error", err)
	c.closeQueue(err)
	c.conn.Close()
}

// Close releases the channel from the consumer side.
func (c *Channel) Close() error {
	c.closing.Store(true)
	c.PullReader.Close()
	return c.conn.Close()
}

func truncateForLog(b []byte) string {
	const max = 64
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
