package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/little-did-I-know/SCPI-Instrument-Control/protodec"
	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"
)

func TestSessionRoundTrip(t *testing.T) {
	frames := []sink.Frame{
		{
			ChannelID:      "C1",
			SampleRate:     1e6,
			TimeOffset:     -0.0007,
			Samples:        []float64{0.1, 0.2, 0.3},
			VerticalScale:  1.0,
			VerticalOffset: 0.05,
			Seq:            7,
			CapturedAt:     time.Now().Truncate(time.Second),
		},
	}
	packets := []protodec.Packet{
		{
			Protocol:  protodec.UART,
			StartTime: 0.001,
			EndTime:   0.002,
			Validity:  protodec.ValidityOK,
			Fields: []protodec.Field{
				{Name: "data", Value: 0x42, Validity: protodec.ValidityOK},
			},
		},
	}

	s := NewSession("SDS1104X-E", "trace-1", frames, packets)
	path := filepath.Join(t.TempDir(), "session.cbor")
	require.NoError(t, WriteFile(path, s))

	got, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "SDS1104X-E", got.Instrument)
	assert.Equal(t, "trace-1", got.TraceID)
	require.Len(t, got.Frames, 1)
	assert.Equal(t, "C1", got.Frames[0].ChannelID)
	assert.Equal(t, uint64(7), got.Frames[0].Seq)
	assert.Equal(t, frames[0].Samples, got.Frames[0].Samples)

	require.Len(t, got.Packets, 1)
	assert.Equal(t, "uart", got.Packets[0].Protocol)
	assert.Equal(t, "ok", got.Packets[0].Validity)
	require.Len(t, got.Packets[0].Fields, 1)
	assert.Equal(t, uint64(0x42), got.Packets[0].Fields[0].Value)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.cbor"))
	assert.Error(t, err)
}
