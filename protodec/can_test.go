package protodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"
)

// canWriter builds a raw bitstream with the transmitter's stuffing rule:
// after five identical bits one opposite bit is inserted.
type canWriter struct {
	raw  []int
	run  int
	last int
}

func newCANWriter() *canWriter { return &canWriter{last: -1} }

func (w *canWriter) stuffed(b int) {
	w.raw = append(w.raw, b)
	if b == w.last {
		w.run++
	} else {
		w.run = 1
		w.last = b
	}
	if w.run == 5 {
		s := 1 - b
		w.raw = append(w.raw, s)
		w.run = 1
		w.last = s
	}
}

func (w *canWriter) stuffedN(v uint64, n int) {
	for k := n - 1; k >= 0; k-- {
		w.stuffed(int(v >> k & 1))
	}
}

func (w *canWriter) plain(bits ...int) { w.raw = append(w.raw, bits...) }

// baseFrame writes a classic 11-bit-identifier data frame ending with a
// dominant ack slot.
func (w *canWriter) baseFrame(id uint64, data []byte, crc uint64) {
	w.stuffed(0) // SOF
	w.stuffedN(id, 11)
	w.stuffed(0) // RTR
	w.stuffed(0) // IDE
	w.stuffed(0) // r0
	w.stuffedN(uint64(len(data)), 4)
	for _, b := range data {
		w.stuffedN(uint64(b), 8)
	}
	w.stuffedN(crc, 15)
	w.plain(1, 0, 1)             // CRC delim, ack slot, ack delim
	w.plain(1, 1, 1, 1, 1, 1, 1) // EOF
}

func (w *canWriter) extendedFrame(id uint64, data []byte, crc uint64) {
	w.stuffed(0) // SOF
	w.stuffedN(id>>18, 11)
	w.stuffed(1) // SRR
	w.stuffed(1) // IDE
	w.stuffedN(id&0x3FFFF, 18)
	w.stuffed(0) // RTR
	w.stuffed(0) // r1
	w.stuffed(0) // r0
	w.stuffedN(uint64(len(data)), 4)
	for _, b := range data {
		w.stuffedN(uint64(b), 8)
	}
	w.stuffedN(crc, 15)
	w.plain(1, 0, 1)
	w.plain(1, 1, 1, 1, 1, 1, 1)
}

// samples expands the bitstream to spb samples per bit with recessive idle
// padding on both ends.
func (w *canWriter) samples(spb int) []float64 {
	var out []float64
	emit := func(b int, bits int) {
		lvl := testLow
		if b == 1 {
			lvl = testHigh
		}
		for i := 0; i < bits*spb; i++ {
			out = append(out, lvl)
		}
	}
	emit(1, 3)
	for _, b := range w.raw {
		emit(b, 1)
	}
	emit(1, 3)
	return out
}

func canTestConfig() Config {
	return Config{
		Protocol:  CAN,
		Threshold: testThreshold,
		CAN:       CANConfig{BitRate: 125000},
	}
}

func canFrameOf(samples []float64) sink.Frame {
	return sink.Frame{ChannelID: "C1", SampleRate: 1e6, Samples: samples}
}

func fieldValue(t *testing.T, p Packet, name string) uint64 {
	t.Helper()
	f, ok := p.Field(name)
	require.True(t, ok, "missing field %q", name)
	return f.Value
}

func TestCAN_BaseFrame(t *testing.T) {
	w := newCANWriter()
	w.baseFrame(0x123, []byte{0xAA, 0x55}, 0x5AB)
	frame := canFrameOf(w.samples(8))

	packets, carry, err := Decode(frame, nil, canTestConfig(), Carry{})
	require.NoError(t, err)
	assert.True(t, carry.Empty())
	require.Len(t, packets, 1)

	p := packets[0]
	assert.Equal(t, CAN, p.Protocol)
	assert.Equal(t, ValidityOK, p.Validity)
	assert.Equal(t, uint64(0x123), fieldValue(t, p, "id"))
	assert.Equal(t, uint64(0), fieldValue(t, p, "rtr"))
	assert.Equal(t, uint64(0), fieldValue(t, p, "ide"))
	assert.Equal(t, uint64(2), fieldValue(t, p, "dlc"))
	assert.Equal(t, uint64(0x5AB), fieldValue(t, p, "crc"))
	assert.Equal(t, uint64(1), fieldValue(t, p, "ack"))

	var data []uint64
	for _, f := range p.Fields {
		if f.Name == "data" {
			data = append(data, f.Value)
		}
	}
	assert.Equal(t, []uint64{0xAA, 0x55}, data)
}

func TestCAN_ExtendedFrame(t *testing.T) {
	w := newCANWriter()
	w.extendedFrame(0x1ABCDEF5, []byte{0x01}, 0x2F3C)
	frame := canFrameOf(w.samples(8))

	packets, _, err := Decode(frame, nil, canTestConfig(), Carry{})
	require.NoError(t, err)
	require.Len(t, packets, 1)

	p := packets[0]
	assert.Equal(t, ValidityOK, p.Validity)
	assert.Equal(t, uint64(0x1ABCDEF5), fieldValue(t, p, "id"))
	assert.Equal(t, uint64(1), fieldValue(t, p, "ide"))
	assert.Equal(t, uint64(1), fieldValue(t, p, "dlc"))
}

func TestCAN_StuffingStripped(t *testing.T) {
	// Identifier 0x7C0 opens with a run of five recessive bits, forcing a
	// stuff bit inside the arbitration field.
	w := newCANWriter()
	w.baseFrame(0x7C0, nil, 0x1234)
	frame := canFrameOf(w.samples(8))

	packets, _, err := Decode(frame, nil, canTestConfig(), Carry{})
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, ValidityOK, packets[0].Validity)
	assert.Equal(t, uint64(0x7C0), fieldValue(t, packets[0], "id"))
	assert.Equal(t, uint64(0), fieldValue(t, packets[0], "dlc"))
}

func TestCAN_RecessiveAckIsNack(t *testing.T) {
	w := newCANWriter()
	w.stuffed(0)
	w.stuffedN(0x101, 11)
	w.stuffed(0)
	w.stuffed(0)
	w.stuffed(0)
	w.stuffedN(0, 4)
	w.stuffedN(0x0F0F, 15)
	w.plain(1, 1, 1)             // ack slot left recessive
	w.plain(1, 1, 1, 1, 1, 1, 1)
	frame := canFrameOf(w.samples(8))

	packets, _, err := Decode(frame, nil, canTestConfig(), Carry{})
	require.NoError(t, err)
	require.Len(t, packets, 1)

	ack, ok := packets[0].Field("ack")
	require.True(t, ok)
	assert.Equal(t, uint64(0), ack.Value)
	assert.Equal(t, ValidityNack, ack.Validity)
}

func TestCAN_TruncatedFrameCarriesAcrossSeam(t *testing.T) {
	w := newCANWriter()
	w.baseFrame(0x321, []byte{0xDE, 0xAD}, 0x7FF)
	samples := w.samples(8)

	// Cut inside the data field.
	split := 3*8 + 30*8
	p1, carry, err := Decode(canFrameOf(samples[:split]), nil, canTestConfig(), Carry{})
	require.NoError(t, err)
	require.False(t, carry.Empty())
	require.Len(t, p1, 1)
	assert.Equal(t, ValidityIncomplete, p1[0].Validity)
	assert.Equal(t, uint64(0x321), fieldValue(t, p1[0], "id"))

	p2, carry2, err := Decode(canFrameOf(samples[split:]), nil, canTestConfig(), carry)
	require.NoError(t, err)
	assert.True(t, carry2.Empty())
	require.Len(t, p2, 1)
	assert.Equal(t, ValidityOK, p2[0].Validity)
	assert.Equal(t, uint64(0x321), fieldValue(t, p2[0], "id"))

	var data []uint64
	for _, f := range p2[0].Fields {
		if f.Name == "data" {
			data = append(data, f.Value)
		}
	}
	assert.Equal(t, []uint64{0xDE, 0xAD}, data)
}
