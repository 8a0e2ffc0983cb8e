// Package measure computes scalar waveform measurements on completed frames,
// so the presentation layer can show readouts without touching sample data.
package measure

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"
)

// Result holds the standard readouts for one frame.
type Result struct {
	Min       float64
	Max       float64
	Vpp       float64
	Mean      float64
	RMS       float64
	Frequency float64
}

// Analyze computes Result for a frame. Frequency is the dominant non-DC
// spectral component; zero when the frame is too short to estimate one.
func Analyze(f sink.Frame) Result {
	if len(f.Samples) == 0 {
		return Result{}
	}

	res := Result{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum, sumSq float64
	for _, s := range f.Samples {
		if s < res.Min {
			res.Min = s
		}
		if s > res.Max {
			res.Max = s
		}
		sum += s
		sumSq += s * s
	}
	n := float64(len(f.Samples))
	res.Vpp = res.Max - res.Min
	res.Mean = sum / n
	res.RMS = math.Sqrt(sumSq / n)
	res.Frequency = dominantFrequency(f.Samples, f.SampleRate)
	return res
}

// dominantFrequency picks the strongest non-DC bin of the real FFT.
func dominantFrequency(samples []float64, rate float64) float64 {
	if len(samples) < 4 || rate <= 0 {
		return 0
	}
	fft := fourier.NewFFT(len(samples))
	coeff := fft.Coefficients(nil, samples)

	bestBin := 0
	bestMag := 0.0
	for i := 1; i < len(coeff); i++ {
		mag := math.Hypot(real(coeff[i]), imag(coeff[i]))
		if mag > bestMag {
			bestMag = mag
			bestBin = i
		}
	}
	if bestBin == 0 {
		return 0
	}
	return fft.Freq(bestBin) * rate
}
