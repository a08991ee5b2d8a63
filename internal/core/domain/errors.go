package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedHandshake: the first inbound message after the channel
	// handshake was not the expected success marker.
	ErrUnexpectedHandshake = errors.New("unexpected handshake acknowledgement")
	// ErrConnectionLost: the underlying connection dropped before the
	// terminal chunk frame arrived.
	ErrConnectionLost = errors.New("connection lost")
	// ErrMalformedFrame: an inbound frame did not carry the expected
	// sequence prefix or message type.
	ErrMalformedFrame = errors.New("malformed chunk frame")
)

// FailureKind classifies per-track failures. Failures are isolated: one
// track failing never aborts the others.
type FailureKind string

const (
	FailureProtocol  FailureKind = "protocol"
	FailureTransport FailureKind = "transport"
	FailureDecode    FailureKind = "decode"
	FailureStorage   FailureKind = "storage"
)

// LoadError is the failure of a single track loader.
type LoadError struct {
	Track int
	Name  string
	Kind  FailureKind
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("track %d (%s): %s error: %v", e.Track, e.Name, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// AsLoadError extracts a LoadError from an error chain.
func AsLoadError(err error) (*LoadError, bool) {
	var le *LoadError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
