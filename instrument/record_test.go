package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertRaw(t *testing.T) {
	negDiv := int8(-25)
	floor := int8(-128)
	raw := []byte{0, 25, byte(negDiv), 50, byte(floor), 127}
	got := ConvertRaw(raw, 2.0, 0.5)

	want := []float64{
		-0.5,                   // code 0
		2.0 - 0.5,              // one division up
		-2.0 - 0.5,             // one division down
		4.0 - 0.5,              // two divisions up
		-128 * 2.0 / 25 - 0.5,  // ADC floor
		127 * 2.0 / 25 - 0.5,   // ADC ceiling
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12, "sample %d", i)
	}
}

func TestConvertRawEmpty(t *testing.T) {
	assert.Empty(t, ConvertRaw(nil, 1.0, 0))
}

func TestParseScaledResponse(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		want    float64
		wantErr bool
	}{
		{"vdiv with echo and unit", "C1:VDIV 1.00E+00V", 1.0, false},
		{"sample rate", "SARA 1.00E+09Sa/s", 1e9, false},
		{"offset negative", "C2:OFST -2.50E-01V", -0.25, false},
		{"trigger delay", "TRDL 0.00E+00S", 0.0, false},
		{"bare number", "2.5", 2.5, false},
		{"trailing newline", "SARA 5.00E+05Sa/s\n", 5e5, false},
		{"no numeric content", "C1:VDIV garbage", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScaledResponse(tt.resp)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}
