package acquire

// Claim guards exclusive use of the instrument channel. Capture and live
// traffic must never interleave on the same connection, so every worker takes
// the claim for the duration of its session and fails fast when it cannot.
type Claim struct {
	sem chan struct{}
}

func NewClaim() *Claim {
	return &Claim{sem: make(chan struct{}, 1)}
}

// TryAcquire takes the claim without blocking. Returns false if held.
func (c *Claim) TryAcquire() bool {
	select {
	case c.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns the claim. Releasing an unheld claim is a no-op.
func (c *Claim) Release() {
	select {
	case <-c.sem:
	default:
	}
}
