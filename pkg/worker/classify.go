package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/codeready-toolchain/jobrunner/pkg/model"
)

// Classify maps an error returned by the LLM capability to the closed
// error-kind enum the retry policy and the errors surface consume. It
// is forgiving: any unrecognized shape falls back to ErrorUnknown
// rather than panicking on an unfamiliar provider
// error format.
func Classify(err error) model.ErrorKind {
	if err == nil {
		return model.ErrorUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorNetworkTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded", "connection reset", "econnrefused"):
		return model.ErrorNetworkTimeout
	case containsAny(msg, "rate limit", "429", "too many requests"):
		return model.ErrorRateLimit
	case containsAny(msg, "500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"):
		return model.ErrorServerError
	case containsAny(msg, "content policy", "content_policy", "safety", "moderation"):
		return model.ErrorContentPolicy
	case containsAny(msg, "invalid request", "400", "bad request", "invalid_request", "validation"):
		return model.ErrorInvalidRequest
	default:
		return model.ErrorUnknown
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
