package instrument

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one channel's decoded waveform pull.
type Record struct {
	Channel        string
	SampleRate     float64
	VerticalScale  float64
	VerticalOffset float64
	TimeOffset     float64
	Samples        []float64
}

// ConvertRaw turns the instrument's signed 8-bit ADC codes into volts using
// the documented record format: volts = code * vdiv/25 - offset, where one
// vertical division spans 25 codes.
func ConvertRaw(raw []byte, vdiv, offset float64) []float64 {
	out := make([]float64, len(raw))
	for i, b := range raw {
		code := float64(int8(b))
		out[i] = code*vdiv/25.0 - offset
	}
	return out
}

// parseScaledResponse extracts the numeric value from responses like
// "C1:VDIV 1.00E+00V", "SARA 1.00E+09Sa/s" or a bare "2.50E-01". Unit
// suffixes are stripped; the command echo before the value is ignored.
func parseScaledResponse(resp string) (float64, error) {
	s := strings.TrimSpace(resp)
	if idx := strings.LastIndexByte(s, ' '); idx >= 0 {
		s = s[idx+1:]
	}

	// Trim the trailing unit (V, S, Sa/s, ...): keep the longest prefix that
	// still parses as a float.
	end := len(s)
	for end > 0 {
		if _, err := strconv.ParseFloat(s[:end], 64); err == nil {
			break
		}
		end--
	}
	if end == 0 {
		return 0, fmt.Errorf("instrument: unparseable numeric response %q", resp)
	}
	return strconv.ParseFloat(s[:end], 64)
}
