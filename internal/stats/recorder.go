// Package stats records connection diagnostics for status reporting.
package stats

import (
	"sync"
	"time"
)

// ErrorInfo is the last error reported by the backend or the session.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Statistics is a point-in-time copy of the recorder's counters.
type Statistics struct {
	TotalAttempts         int64      `json:"total_attempts"`
	SuccessfulConnections int64      `json:"successful_connections"`
	FailedConnections     int64      `json:"failed_connections"`
	SuccessRate           float64    `json:"success_rate"`
	ErrorCount            int64      `json:"error_count"`
	LastConnectionTime    *time.Time `json:"last_connection_time"`
	LastError             *ErrorInfo `json:"last_error"`
}

// Recorder holds monotonically increasing connection counters.
type Recorder struct {
	mu         sync.Mutex
	attempts   int64
	successes  int64
	failures   int64
	errors     int64
	lastConnAt time.Time
	lastErr    *ErrorInfo
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordAttempt counts a connect attempt.
func (r *Recorder) RecordAttempt() {
	r.mu.Lock()
	r.attempts++
	r.mu.Unlock()
}

// RecordSuccess counts a successful connect at the given time.
func (r *Recorder) RecordSuccess(at time.Time) {
	r.mu.Lock()
	r.successes++
	r.lastConnAt = at
	r.mu.Unlock()
}

// RecordFailure counts a failed connect and stores its error.
func (r *Recorder) RecordFailure(code int, message string) {
	r.mu.Lock()
	r.failures++
	r.setError(code, message)
	r.mu.Unlock()
}

// RecordError stores an error that is not tied to a connect attempt.
func (r *Recorder) RecordError(code int, message string) {
	r.mu.Lock()
	r.setError(code, message)
	r.mu.Unlock()
}

// setError must be called with r.mu held.
func (r *Recorder) setError(code int, message string) {
	r.errors++
	r.lastErr = &ErrorInfo{Code: code, Message: message}
}

// LastError returns the most recent error, if any.
func (r *Recorder) LastError() (ErrorInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr == nil {
		return ErrorInfo{}, false
	}
	return *r.lastErr, true
}

// Snapshot returns a copy of the counters with the derived success rate.
func (r *Recorder) Snapshot() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Statistics{
		TotalAttempts:         r.attempts,
		SuccessfulConnections: r.successes,
		FailedConnections:     r.failures,
		ErrorCount:            r.errors,
	}
	if r.attempts > 0 {
		s.SuccessRate = float64(r.successes) / float64(r.attempts)
	}
	if !r.lastConnAt.IsZero() {
		t := r.lastConnAt
		s.LastConnectionTime = &t
	}
	if r.lastErr != nil {
		e := *r.lastErr
		s.LastError = &e
	}
	return s
}

// Reset zeroes every counter and clears the last error and connect time.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = 0
	r.successes = 0
	r.failures = 0
	r.errors = 0
	r.lastConnAt = time.Time{}
	r.lastErr = nil
}
