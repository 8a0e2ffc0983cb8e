// Package export writes capture results to disk as CBOR for offline
// analysis. The format is self-contained: frames keep their scaling so a
// reader can reconstruct voltages without the instrument.
package export

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/little-did-I-know/SCPI-Instrument-Control/protodec"
	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"
)

// Session is one exported capture: the frames pulled plus any decode run
// over them.
type Session struct {
	CreatedAt  time.Time      `cbor:"created_at"`
	Instrument string         `cbor:"instrument"`
	TraceID    string         `cbor:"trace_id"`
	Frames     []FrameRecord  `cbor:"frames"`
	Packets    []PacketRecord `cbor:"packets,omitempty"`
}

type FrameRecord struct {
	ChannelID      string    `cbor:"channel_id"`
	SampleRate     float64   `cbor:"sample_rate"`
	TimeOffset     float64   `cbor:"time_offset"`
	VerticalScale  float64   `cbor:"vertical_scale"`
	VerticalOffset float64   `cbor:"vertical_offset"`
	Seq            uint64    `cbor:"seq"`
	CapturedAt     time.Time `cbor:"captured_at"`
	Samples        []float64 `cbor:"samples"`
}

type PacketRecord struct {
	Protocol  string        `cbor:"protocol"`
	StartTime float64       `cbor:"start_time"`
	EndTime   float64       `cbor:"end_time"`
	Validity  string        `cbor:"validity"`
	Fields    []FieldRecord `cbor:"fields"`
}

type FieldRecord struct {
	Name     string `cbor:"name"`
	Value    uint64 `cbor:"value"`
	Validity string `cbor:"validity"`
}

// NewSession builds an export record from capture output.
func NewSession(instrument, traceID string, frames []sink.Frame, packets []protodec.Packet) Session {
	s := Session{
		CreatedAt:  time.Now(),
		Instrument: instrument,
		TraceID:    traceID,
	}
	for _, f := range frames {
		s.Frames = append(s.Frames, FrameRecord{
			ChannelID:      f.ChannelID,
			SampleRate:     f.SampleRate,
			TimeOffset:     f.TimeOffset,
			VerticalScale:  f.VerticalScale,
			VerticalOffset: f.VerticalOffset,
			Seq:            f.Seq,
			CapturedAt:     f.CapturedAt,
			Samples:        f.Samples,
		})
	}
	for _, p := range packets {
		pr := PacketRecord{
			Protocol:  p.Protocol.String(),
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
			Validity:  p.Validity.String(),
		}
		for _, f := range p.Fields {
			pr.Fields = append(pr.Fields, FieldRecord{
				Name:     f.Name,
				Value:    f.Value,
				Validity: f.Validity.String(),
			})
		}
		s.Packets = append(s.Packets, pr)
	}
	return s
}

// WriteFile marshals the session and writes it to path.
func WriteFile(path string, s Session) error {
	data, err := cbor.Marshal(s)
	if err != nil {
		return fmt.Errorf("export: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a previously exported session.
func ReadFile(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, fmt.Errorf("export: read %s: %w", path, err)
	}
	var s Session
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("export: unmarshal %s: %w", path, err)
	}
	return s, nil
}
