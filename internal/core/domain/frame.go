package domain

// Sample formats as they appear in FormatParams. The canonical destination
// format for all tracks is signed 16-bit PCM; decoders produce f32 natively
// and the conversion stage narrows it.
const (
	SampleFormatS16 = "s16"
	SampleFormatF32 = "f32"
)

// FormatParams are the stream parameters of a track. They are unknown until
// the first decoded frame arrives and immutable afterwards.
type FormatParams struct {
	SampleRate   int
	Channels     int
	SampleFormat string
}

// DecodedFrame is one unit of converted audio samples on its way from the
// decode stage to the track sink. Data is interleaved canonical s16 PCM;
// SampleCount counts samples per channel.
type DecodedFrame struct {
	Data        []int16
	SampleCount int
	Params      FormatParams
}

// Duration returns the frame length in seconds.
func (f *DecodedFrame) Duration() float64 {
	if f.Params.SampleRate <= 0 {
		return 0
	}
	return float64(f.SampleCount) / float64(f.Params.SampleRate)
}
