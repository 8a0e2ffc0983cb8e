package instrument

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sim is an in-memory Channel that behaves like a responsive oscilloscope.
// Tests and the demo path script it: trigger delay, transient failures and
// per-channel waveform content are all injectable.
type Sim struct {
	mu sync.Mutex

	idn          string
	sampleRate   float64
	vdiv         float64
	ofst         float64
	triggerDelay time.Duration
	recordLen    int

	armed   bool
	armedAt time.Time

	waveFor      func(channel string, points int) []byte
	failNext     int
	failAll      error
	exchangeTime time.Duration
	wfsuPoints   int
	requests     []string
}

// NewSim returns a simulator with a 1 kHz sine on every channel, a 1 MSa/s
// sample rate and an immediately satisfied trigger.
func NewSim() *Sim {
	s := &Sim{
		idn:        "Simulated Instruments,SDS1104X-E,SIM0000001,1.0.0",
		sampleRate: 1e6,
		vdiv:       1.0,
		ofst:       0,
		recordLen:  1400,
	}
	s.waveFor = func(channel string, points int) []byte {
		out := make([]byte, points)
		for i := range out {
			v := math.Sin(2 * math.Pi * 1000 * float64(i) / s.sampleRate)
			out[i] = byte(int8(v * 100))
		}
		return out
	}
	return s
}

// SetTriggerDelay makes the armed acquisition report busy for d after ARM.
func (s *Sim) SetTriggerDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerDelay = d
}

// SetRecordLength fixes the number of points a full waveform pull returns.
func (s *Sim) SetRecordLength(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLen = n
}

// SetSampleRate changes the reported acquisition rate.
func (s *Sim) SetSampleRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleRate = rate
}

// SetWaveform overrides the per-channel raw sample generator.
func (s *Sim) SetWaveform(fn func(channel string, points int) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waveFor = fn
}

// FailNext makes the next n exchanges fail with a transient transport error.
func (s *Sim) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// FailAlways breaks the channel permanently with err.
func (s *Sim) FailAlways(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

// SetExchangeTime adds fixed latency to every exchange.
func (s *Sim) SetExchangeTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchangeTime = d
}

// Requests returns the commands seen so far, in order.
func (s *Sim) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Sim) checkFault(cmd string) error {
	if s.failAll != nil {
		return s.failAll
	}
	if s.failNext > 0 {
		s.failNext--
		return &TransportError{Op: "send", Cmd: cmd, Err: errors.New("simulated transient fault")}
	}
	return nil
}

func (s *Sim) Send(cmd string) (string, error) {
	s.mu.Lock()
	latency := s.exchangeTime
	s.mu.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, cmd)
	if err := s.checkFault(cmd); err != nil {
		return "", err
	}

	switch {
	case cmd == "*IDN?":
		return s.idn, nil
	case strings.HasPrefix(cmd, "TRMD"):
		return "", nil
	case cmd == "ARM":
		s.armed = true
		s.armedAt = time.Now()
		return "", nil
	case cmd == "SAST?":
		if s.armed && time.Since(s.armedAt) < s.triggerDelay {
			return "SAST Trig'd", nil
		}
		return "SAST Stop", nil
	case cmd == "SARA?":
		return fmt.Sprintf("SARA %.2ESa/s", s.sampleRate), nil
	case cmd == "TRDL?":
		return "TRDL 0.00E+00S", nil
	case strings.HasSuffix(cmd, ":VDIV?"):
		ch := strings.TrimSuffix(cmd, ":VDIV?")
		return fmt.Sprintf("%s:VDIV %.2EV", ch, s.vdiv), nil
	case strings.HasSuffix(cmd, ":OFST?"):
		ch := strings.TrimSuffix(cmd, ":OFST?")
		return fmt.Sprintf("%s:OFST %.2EV", ch, s.ofst), nil
	case strings.HasPrefix(cmd, "WFSU"):
		s.wfsuPoints = 0
		parts := strings.Split(strings.TrimPrefix(cmd, "WFSU "), ",")
		for i := 0; i+1 < len(parts); i += 2 {
			if strings.TrimSpace(parts[i]) != "NP" {
				continue
			}
			if n, err := strconv.Atoi(strings.TrimSpace(parts[i+1])); err == nil {
				s.wfsuPoints = n
			}
		}
		return "", nil
	case strings.HasPrefix(cmd, "HCSU"):
		return "", nil
	default:
		return "", nil
	}
}

func (s *Sim) QueryBinary(cmd string) ([]byte, error) {
	s.mu.Lock()
	latency := s.exchangeTime
	s.mu.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, cmd)
	if err := s.checkFault(cmd); err != nil {
		return nil, err
	}

	switch {
	case strings.Contains(cmd, ":WF?"):
		ch, _, _ := strings.Cut(cmd, ":")
		points := s.recordLen
		if s.wfsuPoints > 0 && s.wfsuPoints < points {
			points = s.wfsuPoints
		}
		s.armed = false
		return s.waveFor(ch, points), nil
	case cmd == "SCDP":
		// PNG signature followed by nothing useful; enough for callers that
		// only check the magic bytes.
		return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, nil
	default:
		return nil, fmt.Errorf("sim: unknown binary query %q", cmd)
	}
}

func (s *Sim) Close() error { return nil }
