package instrument

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeIdentify(t *testing.T) {
	scope := NewScope(NewSim())
	idn, err := scope.Identify()
	require.NoError(t, err)
	assert.Contains(t, idn, "SDS1104X-E")
}

func TestScopeArm(t *testing.T) {
	sim := NewSim()
	scope := NewScope(sim)

	require.NoError(t, scope.Arm(TriggerSingle))
	assert.Equal(t, []string{"TRMD SINGLE", "ARM"}, sim.Requests())

	require.NoError(t, scope.Arm(""))
	assert.Error(t, scope.Arm("WEIRD"))
}

func TestScopeAcquisitionComplete(t *testing.T) {
	sim := NewSim()
	sim.SetTriggerDelay(40 * time.Millisecond)
	scope := NewScope(sim)

	require.NoError(t, scope.Arm(TriggerSingle))

	done, err := scope.AcquisitionComplete()
	require.NoError(t, err)
	assert.False(t, done, "acquisition should still be running right after arming")

	time.Sleep(60 * time.Millisecond)
	done, err = scope.AcquisitionComplete()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestScopeSampleRate(t *testing.T) {
	sim := NewSim()
	sim.SetSampleRate(2.5e8)
	scope := NewScope(sim)

	rate, err := scope.SampleRate()
	require.NoError(t, err)
	assert.InDelta(t, 2.5e8, rate, 1)
}

func TestScopeReadWaveform(t *testing.T) {
	sim := NewSim()
	sim.SetWaveform(func(channel string, points int) []byte {
		out := make([]byte, points)
		for i := range out {
			out[i] = 25 // one division above center
		}
		return out
	})
	scope := NewScope(sim)

	rec, err := scope.ReadWaveform("C1", 500)
	require.NoError(t, err)
	assert.Equal(t, "C1", rec.Channel)
	assert.Len(t, rec.Samples, 500)
	assert.InDelta(t, 1e6, rec.SampleRate, 1)
	assert.InDelta(t, 1.0, rec.VerticalScale, 1e-9)

	// vdiv 1.0, offset 0: code 25 reads as exactly one volt.
	for _, v := range rec.Samples {
		assert.InDelta(t, 1.0, v, 1e-9)
	}
}

func TestScopeReadWaveformTransportError(t *testing.T) {
	sim := NewSim()
	sim.FailNext(1)
	scope := NewScope(sim)

	_, err := scope.ReadWaveform("C1", 100)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestScopeScreenshot(t *testing.T) {
	scope := NewScope(NewSim())

	data, err := scope.Screenshot("png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])

	_, err = scope.Screenshot("gif")
	assert.Error(t, err)
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &TransportError{Op: "send", Cmd: "SAST?", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.True(t, IsTransient(err))
	assert.False(t, IsTransient(errors.New("plain")))
}
