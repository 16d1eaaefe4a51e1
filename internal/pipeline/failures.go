package pipeline

import "sync"

const defaultFailureThreshold = 5

// FailureTracker counts consecutive cycle failures and reports when the
// reconnect ceiling is reached. Any successful cycle resets the streak;
// the lifetime total keeps counting for the status endpoint.
type FailureTracker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	total       uint64
	lastErr     error
}

// NewFailureTracker creates a tracker with the given ceiling
func NewFailureTracker(threshold int) *FailureTracker {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &FailureTracker{threshold: threshold}
}

// Record notes one failed cycle and reports whether the consecutive
// failure count has reached the reconnect threshold.
func (t *FailureTracker) Record(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive++
	t.total++
	t.lastErr = err
	return t.consecutive >= t.threshold
}

// Reset clears the streak after a successful cycle or reconnect
func (t *FailureTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive = 0
}

// Consecutive returns the current failure streak
func (t *FailureTracker) Consecutive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutive
}

// Total returns the lifetime failure count
func (t *FailureTracker) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// LastError returns the most recent recorded failure
func (t *FailureTracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
