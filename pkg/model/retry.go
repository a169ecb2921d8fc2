package model

import "time"

// RetryPolicy controls how a FAILED-with-a-given-error-kind task is
// retried before giving up.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	Retryable   bool          `json:"retryable"`
}

// DefaultRetryPolicy is the fallback used for any error kind without an
// explicit table entry.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Retryable: true}

// RetryPolicyTable maps an error kind to its policy. Entries absent from
// the table fall back to DefaultRetryPolicy.
type RetryPolicyTable map[ErrorKind]RetryPolicy

// Lookup returns the policy for kind, falling back to the default.
func (t RetryPolicyTable) Lookup(kind ErrorKind) RetryPolicy {
	if p, ok := t[kind]; ok {
		return p
	}
	return DefaultRetryPolicy
}

// DefaultRetryPolicyTable ships built-in overrides: error kinds that are
// never retried regardless of attempt count, plus a larger attempt
// budget for rate_limit.
func DefaultRetryPolicyTable() RetryPolicyTable {
	return RetryPolicyTable{
		ErrorNoQueue:         {MaxAttempts: 0, BaseDelay: 0, Retryable: false},
		ErrorUpstreamFailure: {MaxAttempts: 0, BaseDelay: 0, Retryable: false},
		ErrorInvalidRequest:  {MaxAttempts: 1, BaseDelay: 0, Retryable: false},
		ErrorContentPolicy:   {MaxAttempts: 1, BaseDelay: 0, Retryable: false},
		ErrorRateLimit:       {MaxAttempts: 5, BaseDelay: 2 * time.Second, Retryable: true},
		// A direct-answer callable is popped from the registry on its
		// first invocation (it is not idempotent to call twice), so a
		// failure here can never be usefully retried.
		ErrorDirectAnswer: {MaxAttempts: 0, BaseDelay: 0, Retryable: false},
	}
}
