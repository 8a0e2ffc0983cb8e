package acquire

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/little-did-I-know/SCPI-Instrument-Control/instrument"
	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"
)

// LiveConfig drives one live session. The worker snapshots it at the start
// of every iteration, so Reconfigure never races a mid-iteration read.
type LiveConfig struct {
	Channels []string
	// TargetFPS sets the loop cadence. An iteration that overruns the period
	// starts the next one immediately; there is no catch-up queue.
	TargetFPS float64
	// Decimation is the stride applied to the polled window. 1 keeps every
	// sample.
	Decimation int
	// Window is the number of raw points polled per channel per iteration.
	Window int
}

func validateLiveConfig(cfg LiveConfig) error {
	if len(cfg.Channels) == 0 {
		return &ConfigError{Field: "channels", Reason: "at least one channel required"}
	}
	if cfg.TargetFPS <= 0 {
		return &ConfigError{Field: "target_fps", Reason: "must be positive"}
	}
	if cfg.Decimation < 1 {
		return &ConfigError{Field: "decimation_factor", Reason: "must be >= 1"}
	}
	if cfg.Window <= 0 {
		return &ConfigError{Field: "window_size", Reason: "must be positive"}
	}
	return nil
}

// Session is a handle to a running live view. Stop is cooperative: the loop
// exits at the next iteration boundary, after any in-flight query completes.
type Session struct {
	id string

	mu  sync.Mutex
	cfg LiveConfig

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error

	dropped   uint64
	errCount  uint64
	seq       map[string]uint64
}

func (s *Session) ID() string { return s.id }

// Dropped returns frames rejected by the sink so far.
func (s *Session) Dropped() uint64 { return atomic.LoadUint64(&s.dropped) }

// ErrorCount returns skipped iterations due to transient channel faults.
func (s *Session) ErrorCount() uint64 { return atomic.LoadUint64(&s.errCount) }

// Done is closed when the session has fully ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the terminal error, if the session ended on an unrecoverable
// fault. Valid after Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Reconfigure swaps the session config. Takes effect at the next iteration.
func (s *Session) Reconfigure(cfg LiveConfig) error {
	if err := validateLiveConfig(cfg); err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	log.Debugf("[live] %s reconfigured: channels=%v fps=%g decim=%d", s.id, cfg.Channels, cfg.TargetFPS, cfg.Decimation)
	return nil
}

// Stop ends the session and blocks until the loop has exited. After Stop
// returns, no further frame is pushed.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Session) snapshot() LiveConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.Channels = append([]string(nil), s.cfg.Channels...)
	return cfg
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// LiveWorker runs continuous decimated polling for real-time display. Live
// view sacrifices completeness for freshness: frames the sink cannot take
// are dropped and counted, never queued.
type LiveWorker struct {
	scope       *instrument.Scope
	out         FrameSink
	claim       *Claim
	maxFailures int
}

func NewLiveWorker(scope *instrument.Scope, out FrameSink, claim *Claim, maxFailures int) *LiveWorker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &LiveWorker{scope: scope, out: out, claim: claim, maxFailures: maxFailures}
}

// Start begins a live session. Returns ErrBusy if the instrument is held by
// a capture or another session.
func (w *LiveWorker) Start(cfg LiveConfig) (*Session, error) {
	if err := validateLiveConfig(cfg); err != nil {
		return nil, err
	}
	if !w.claim.TryAcquire() {
		return nil, ErrBusy
	}

	sess := &Session{
		id:   uuid.NewString(),
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
		seq:  make(map[string]uint64),
	}
	log.Infof("[live] session %s started: channels=%v fps=%g", sess.id, cfg.Channels, cfg.TargetFPS)
	go w.run(sess)
	return sess, nil
}

func (w *LiveWorker) run(sess *Session) {
	defer close(sess.done)
	defer w.claim.Release()

	consecutiveFailures := 0
	for {
		select {
		case <-sess.stop:
			log.Infof("[live] session %s stopped: dropped=%d errors=%d", sess.id, sess.Dropped(), sess.ErrorCount())
			return
		default:
		}

		start := time.Now()
		cfg := sess.snapshot()

		if err := w.iterate(sess, cfg); err != nil {
			atomic.AddUint64(&sess.errCount, 1)
			consecutiveFailures++
			if !instrument.IsTransient(err) || consecutiveFailures >= w.maxFailures {
				sess.fail(fmt.Errorf("acquire: live session terminated: %w", err))
				log.Errorf("[live] session %s terminated after %d failures: %v", sess.id, consecutiveFailures, err)
				return
			}
			log.Debugf("[live] session %s skipping cycle (%d/%d): %v", sess.id, consecutiveFailures, w.maxFailures, err)
		} else {
			consecutiveFailures = 0
		}

		// Oversleeping is never compensated: a long iteration just starts
		// the next one immediately.
		period := time.Duration(float64(time.Second) / cfg.TargetFPS)
		if wait := period - time.Since(start); wait > 0 {
			select {
			case <-sess.stop:
			case <-time.After(wait):
			}
		}
	}
}

// iterate polls every configured channel once. A fault on any channel skips
// the rest of the cycle; nothing partial is emitted for the failed channel.
func (w *LiveWorker) iterate(sess *Session, cfg LiveConfig) error {
	for _, ch := range cfg.Channels {
		select {
		case <-sess.stop:
			return nil
		default:
		}

		rec, err := w.scope.ReadWaveform(ch, cfg.Window)
		if err != nil {
			return err
		}

		frame := decimate(rec, cfg.Decimation)
		sess.seq[ch]++
		frame.Seq = sess.seq[ch]
		frame.CapturedAt = time.Now()
		frame.Source = sink.SourceLive
		frame.TraceID = sess.id

		select {
		case <-sess.stop:
			return nil
		default:
		}
		if !w.out.TryPush(frame) {
			atomic.AddUint64(&sess.dropped, 1)
		}
	}
	return nil
}

// decimate applies simple stride sampling. No filtering: latency stays
// bounded and the result is deterministic.
func decimate(rec instrument.Record, stride int) sink.Frame {
	samples := rec.Samples
	if stride > 1 {
		out := make([]float64, 0, (len(rec.Samples)+stride-1)/stride)
		for i := 0; i < len(rec.Samples); i += stride {
			out = append(out, rec.Samples[i])
		}
		samples = out
	}
	return sink.Frame{
		ChannelID:      rec.Channel,
		SampleRate:     rec.SampleRate / float64(stride),
		TimeOffset:     rec.TimeOffset,
		Samples:        samples,
		VerticalScale:  rec.VerticalScale,
		VerticalOffset: rec.VerticalOffset,
	}
}
