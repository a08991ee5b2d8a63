package domain

type TrackStatus int

const (
	// StatusWaiting: the track is queued, its loader has not started.
	StatusWaiting TrackStatus = iota
	// StatusNotLoading: the channel handshake succeeded but no frame has
	// been decoded yet.
	StatusNotLoading
	// StatusLoading: frames are flowing; Duration accumulates.
	StatusLoading
	StatusFinished
	StatusFailed
)

func (s TrackStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusNotLoading:
		return "connected"
	case StatusLoading:
		return "loading"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// TrackProgress is one row of the progress table. Each entry is written only
// by its owning track loader; readers take snapshots.
type TrackProgress struct {
	Index    int         `json:"index"`
	Name     string      `json:"name"`
	Status   TrackStatus `json:"status"`
	Duration float64     `json:"duration_seconds"`
}
