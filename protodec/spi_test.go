package protodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"
)

// spiSamples synthesizes mode 0 traffic: clock idles low, data is stable
// across the rising edge, MSB first, spq samples per clock half-phase.
func spiSamples(words []byte, spq int) (data, clk []float64) {
	level := func(b bool) float64 {
		if b {
			return testHigh
		}
		return testLow
	}
	emit := func(d, c bool, n int) {
		for i := 0; i < n; i++ {
			data = append(data, level(d))
			clk = append(clk, level(c))
		}
	}

	emit(false, false, 2*spq) // idle
	for _, w := range words {
		for k := 7; k >= 0; k-- {
			bit := w>>k&1 == 1
			emit(bit, false, spq)
			emit(bit, true, spq)
		}
	}
	emit(false, false, 2*spq)
	return data, clk
}

func spiTestConfig() Config {
	return Config{
		Protocol:  SPI,
		Threshold: testThreshold,
		SPI:       SPIConfig{WordSize: 8, CPOL: 0, CPHA: 0},
	}
}

func TestSPI_RoundTrip(t *testing.T) {
	want := []byte{0x9C, 0x00, 0xFF, 0x5A}
	data, clk := spiSamples(want, 4)

	dataFrame := sink.Frame{ChannelID: "C1", SampleRate: 1e6, Samples: data}
	clkFrame := sink.Frame{ChannelID: "C2", SampleRate: 1e6, Samples: clk}

	packets, carry, err := Decode(dataFrame, &clkFrame, spiTestConfig(), Carry{})
	require.NoError(t, err)
	assert.True(t, carry.Empty())
	require.Len(t, packets, len(want))

	for i, p := range packets {
		assert.Equal(t, SPI, p.Protocol)
		assert.Equal(t, ValidityOK, p.Validity)
		f, ok := p.Field("data")
		require.True(t, ok)
		assert.Equal(t, uint64(want[i]), f.Value, "word %d", i)
	}
}

func TestSPI_RequiresClockFrame(t *testing.T) {
	frame := sink.Frame{SampleRate: 1e6, Samples: []float64{0, 0, 0}}
	_, _, err := Decode(frame, nil, spiTestConfig(), Carry{})
	assert.Error(t, err)
}

func TestSPI_PartialWordCarriesAcrossSeam(t *testing.T) {
	want := []byte{0x81, 0xC3}
	data, clk := spiSamples(want, 4)

	// Split inside the second word, between two of its clock edges.
	split := len(data) - 30
	cfg := spiTestConfig()

	f1 := sink.Frame{ChannelID: "C1", SampleRate: 1e6, Samples: data[:split]}
	c1 := sink.Frame{ChannelID: "C2", SampleRate: 1e6, Samples: clk[:split]}
	p1, carry, err := Decode(f1, &c1, cfg, Carry{})
	require.NoError(t, err)
	require.False(t, carry.Empty())

	last := p1[len(p1)-1]
	assert.Equal(t, ValidityIncomplete, last.Validity)

	f2 := sink.Frame{ChannelID: "C1", SampleRate: 1e6, Samples: data[split:]}
	c2 := sink.Frame{ChannelID: "C2", SampleRate: 1e6, Samples: clk[split:]}
	p2, carry2, err := Decode(f2, &c2, cfg, carry)
	require.NoError(t, err)
	assert.True(t, carry2.Empty())

	var got []byte
	for _, p := range append(p1, p2...) {
		if p.Validity == ValidityIncomplete {
			continue
		}
		f, ok := p.Field("data")
		require.True(t, ok)
		got = append(got, byte(f.Value))
	}
	assert.Equal(t, want, got)
}

func TestSPI_Mode3SamplesOnRisingEdge(t *testing.T) {
	// Mode 3 idles high and samples on the rising edge too, so mode 0
	// traffic with an inverted idle reads the same values.
	want := []byte{0x2B}
	data, clk := spiSamples(want, 4)

	cfg := spiTestConfig()
	cfg.SPI.CPOL = 1
	cfg.SPI.CPHA = 1

	dataFrame := sink.Frame{SampleRate: 1e6, Samples: data}
	clkFrame := sink.Frame{SampleRate: 1e6, Samples: clk}
	packets, _, err := Decode(dataFrame, &clkFrame, cfg, Carry{})
	require.NoError(t, err)
	require.Len(t, packets, 1)
	f, ok := packets[0].Field("data")
	require.True(t, ok)
	assert.Equal(t, uint64(0x2B), f.Value)
}
