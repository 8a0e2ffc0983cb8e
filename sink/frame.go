package sink

import "time"

// FrameSource tells a consumer which worker produced a frame.
type FrameSource int

const (
	SourceCapture FrameSource = iota
	SourceLive
)

func (s FrameSource) String() string {
	switch s {
	case SourceCapture:
		return "capture"
	case SourceLive:
		return "live"
	default:
		return "unknown"
	}
}

// Frame is one completed waveform record for a single channel. Frames are
// immutable after emission: the producer hands ownership to the consumer and
// never touches Samples again.
type Frame struct {
	// ChannelID names the source channel, e.g. "C1".."C4" or "D0".."D15".
	ChannelID string
	// SampleRate in samples per second.
	SampleRate float64
	// TimeOffset is the time of the first sample relative to the trigger, in seconds.
	TimeOffset float64
	// Samples holds the decoded voltage values.
	Samples []float64
	// VerticalScale is volts per division as reported by the instrument.
	VerticalScale float64
	// VerticalOffset is the vertical offset in volts.
	VerticalOffset float64
	// Seq is strictly increasing per channel within a session.
	Seq uint64
	// CapturedAt is when the worker finished assembling the frame.
	CapturedAt time.Time
	// Source identifies the producing worker.
	Source FrameSource
	// TraceID ties the frame to the request or session that produced it.
	TraceID string
}

// Duration returns the time span covered by the frame's samples.
func (f Frame) Duration() float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(len(f.Samples)) / f.SampleRate
}
