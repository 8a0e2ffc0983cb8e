package instrument

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// Trigger modes accepted by Arm.
const (
	TriggerAuto   = "AUTO"
	TriggerNormal = "NORM"
	TriggerSingle = "SINGLE"
	TriggerStop   = "STOP"
)

// Scope speaks the oscilloscope's command vocabulary over a Channel. It owns
// no state beyond the channel; every method is a direct exchange.
type Scope struct {
	ch Channel
}

func NewScope(ch Channel) *Scope {
	return &Scope{ch: ch}
}

// Channel exposes the underlying request/response primitive.
func (s *Scope) Channel() Channel { return s.ch }

// Identify returns the instrument's *IDN? string.
func (s *Scope) Identify() (string, error) {
	return s.ch.Send("*IDN?")
}

// Arm sets the trigger mode and arms the acquisition system.
func (s *Scope) Arm(triggerMode string) error {
	mode := strings.ToUpper(triggerMode)
	switch mode {
	case TriggerAuto, TriggerNormal, TriggerSingle:
	case "":
		mode = TriggerSingle
	default:
		return fmt.Errorf("instrument: unknown trigger mode %q", triggerMode)
	}
	if _, err := s.ch.Send("TRMD " + mode); err != nil {
		return err
	}
	_, err := s.ch.Send("ARM")
	return err
}

// AcquisitionComplete reports whether the armed acquisition has finished.
// The instrument answers SAST? with "SAST Stop" once the record is ready.
func (s *Scope) AcquisitionComplete() (bool, error) {
	resp, err := s.ch.Send("SAST?")
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(resp), "stop"), nil
}

// SampleRate returns the acquisition sample rate in Sa/s.
func (s *Scope) SampleRate() (float64, error) {
	resp, err := s.ch.Send("SARA?")
	if err != nil {
		return 0, err
	}
	return parseScaledResponse(resp)
}

// VerticalScale returns a channel's volts-per-division setting.
func (s *Scope) VerticalScale(channel string) (float64, error) {
	resp, err := s.ch.Send(channel + ":VDIV?")
	if err != nil {
		return 0, err
	}
	return parseScaledResponse(resp)
}

// VerticalOffset returns a channel's vertical offset in volts.
func (s *Scope) VerticalOffset(channel string) (float64, error) {
	resp, err := s.ch.Send(channel + ":OFST?")
	if err != nil {
		return 0, err
	}
	return parseScaledResponse(resp)
}

// TriggerDelay returns the horizontal trigger delay in seconds, which is the
// time offset of the first sample in a record.
func (s *Scope) TriggerDelay() (float64, error) {
	resp, err := s.ch.Send("TRDL?")
	if err != nil {
		return 0, err
	}
	return parseScaledResponse(resp)
}

// ReadWaveform pulls one channel's record. points limits the transfer when
// positive; zero requests the full acquisition memory. The returned record
// carries converted voltages plus the scaling the conversion used.
func (s *Scope) ReadWaveform(channel string, points int) (Record, error) {
	vdiv, err := s.VerticalScale(channel)
	if err != nil {
		return Record{}, err
	}
	ofst, err := s.VerticalOffset(channel)
	if err != nil {
		return Record{}, err
	}
	rate, err := s.SampleRate()
	if err != nil {
		return Record{}, err
	}
	delay, err := s.TriggerDelay()
	if err != nil {
		return Record{}, err
	}

	if _, err := s.ch.Send(fmt.Sprintf("WFSU SP,0,NP,%d,FP,0", points)); err != nil {
		return Record{}, err
	}
	raw, err := s.ch.QueryBinary(channel + ":WF? DAT2")
	if err != nil {
		return Record{}, err
	}
	log.Debugf("[scope] %s record: %d raw points, vdiv=%g ofst=%g rate=%g", channel, len(raw), vdiv, ofst, rate)

	rec := Record{
		Channel:        channel,
		SampleRate:     rate,
		VerticalScale:  vdiv,
		VerticalOffset: ofst,
		TimeOffset:     delay,
		Samples:        ConvertRaw(raw, vdiv, ofst),
	}
	return rec, nil
}
