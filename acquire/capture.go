// Package acquire runs the background workers that pull waveform data from
// the instrument: a one-shot capture worker and a continuous live worker.
// Both run off the caller's control path and share a single instrument claim.
package acquire

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/little-did-I-know/SCPI-Instrument-Control/config"
	"github.com/little-did-I-know/SCPI-Instrument-Control/instrument"
	"github.com/little-did-I-know/SCPI-Instrument-Control/sink"
)

// FrameSink is the presentation layer's intake. TryPush must be non-blocking
// and safe for concurrent producers.
type FrameSink interface {
	TryPush(f sink.Frame) bool
}

// CaptureRequest describes one triggered acquisition. Consumed once.
type CaptureRequest struct {
	Channels     []string
	TriggerMode  string
	RecordLength int
	Timeout      time.Duration
}

// CaptureResult is the single terminal outcome of a request. On success
// Frames holds one frame per requested channel, in channel order.
type CaptureResult struct {
	TraceID string
	Frames  []sink.Frame
	Err     error
}

// CaptureWorker performs single triggered acquisitions. Only one capture may
// be in flight at a time; overlapping submissions fail fast with ErrBusy.
type CaptureWorker struct {
	scope *instrument.Scope
	out   FrameSink
	claim *Claim

	pollInterval time.Duration
	maxRetries   int
	retryBackoff time.Duration

	seq map[string]uint64
}

func NewCaptureWorker(scope *instrument.Scope, out FrameSink, claim *Claim, conf config.CaptureConf) *CaptureWorker {
	pollInterval := conf.PollInterval
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	maxRetries := conf.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryBackoff := conf.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 100 * time.Millisecond
	}
	return &CaptureWorker{
		scope:        scope,
		out:          out,
		claim:        claim,
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		seq:          make(map[string]uint64),
	}
}

// Submit starts a capture in the background and returns a channel that will
// carry exactly one CaptureResult. It returns ErrBusy immediately when a
// capture is already running or the instrument is held by a live session,
// and a ConfigError for an invalid request. Submit never blocks on hardware.
func (w *CaptureWorker) Submit(req CaptureRequest) (<-chan CaptureResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !w.claim.TryAcquire() {
		return nil, ErrBusy
	}

	results := make(chan CaptureResult, 1)
	traceID := uuid.NewString()
	go func() {
		defer w.claim.Release()
		frames, err := w.run(req, traceID)
		if err != nil {
			log.Errorf("[capture] %s failed: %v", traceID, err)
		}
		results <- CaptureResult{TraceID: traceID, Frames: frames, Err: err}
	}()
	return results, nil
}

func validateRequest(req CaptureRequest) error {
	if len(req.Channels) == 0 {
		return &ConfigError{Field: "channels", Reason: "at least one channel required"}
	}
	if req.RecordLength <= 0 {
		return &ConfigError{Field: "record_length", Reason: "must be positive"}
	}
	if req.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	return nil
}

func (w *CaptureWorker) run(req CaptureRequest, traceID string) ([]sink.Frame, error) {
	log.Debugf("[capture] %s arming: channels=%v mode=%s len=%d", traceID, req.Channels, req.TriggerMode, req.RecordLength)

	if err := w.withRetry("arm", func() error {
		return w.scope.Arm(req.TriggerMode)
	}); err != nil {
		return nil, err
	}

	if err := w.waitForTrigger(req.Timeout); err != nil {
		return nil, err
	}

	// Pull and validate every channel before emitting anything: a capture
	// either completes fully or fails.
	frames := make([]sink.Frame, 0, len(req.Channels))
	capturedAt := time.Now()
	for _, ch := range req.Channels {
		var rec instrument.Record
		if err := w.withRetry("waveform "+ch, func() error {
			var err error
			rec, err = w.scope.ReadWaveform(ch, req.RecordLength)
			return err
		}); err != nil {
			return nil, err
		}
		if len(rec.Samples) != req.RecordLength {
			return nil, fmt.Errorf("%w: %s returned %d of %d samples", ErrIncomplete, ch, len(rec.Samples), req.RecordLength)
		}

		w.seq[ch]++
		frames = append(frames, sink.Frame{
			ChannelID:      ch,
			SampleRate:     rec.SampleRate,
			TimeOffset:     rec.TimeOffset,
			Samples:        rec.Samples,
			VerticalScale:  rec.VerticalScale,
			VerticalOffset: rec.VerticalOffset,
			Seq:            w.seq[ch],
			CapturedAt:     capturedAt,
			Source:         sink.SourceCapture,
			TraceID:        traceID,
		})
	}

	for _, f := range frames {
		w.push(f)
	}
	log.Infof("[capture] %s complete: %d channels, %d samples each", traceID, len(frames), req.RecordLength)
	return frames, nil
}

func (w *CaptureWorker) waitForTrigger(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var done bool
		if err := w.withRetry("status poll", func() error {
			var err error
			done, err = w.scope.AcquisitionComplete()
			return err
		}); err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(w.pollInterval)
	}
}

// push makes a bounded number of enqueue attempts. Capture output is
// complete-or-nothing upstream of the sink; if a consumer stays full past
// the attempts we log and move on rather than block the worker.
func (w *CaptureWorker) push(f sink.Frame) {
	for attempt := 0; attempt < 3; attempt++ {
		if w.out.TryPush(f) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Warnf("[capture] sink rejected frame %s seq=%d", f.ChannelID, f.Seq)
}

func (w *CaptureWorker) withRetry(op string, fn func() error) error {
	backoff := w.retryBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !instrument.IsTransient(err) || attempt >= w.maxRetries {
			return err
		}
		log.Debugf("[capture] transient fault on %s (attempt %d/%d): %v", op, attempt+1, w.maxRetries, err)
		time.Sleep(backoff)
		backoff *= 2
	}
}
