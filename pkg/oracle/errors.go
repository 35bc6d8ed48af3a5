package oracle

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/genai"
)

// ErrEmptyResponse indicates the model returned no usable text
var ErrEmptyResponse = errors.New("oracle returned empty response")

// IsTransient reports whether err is worth retrying. Rate limits, server
// errors, timeouts, and empty responses are transient; auth and request
// errors are not. Unknown errors count as transient so retry exhaustion
// routes them to the rule-based fallback instead of dropping the candidate.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, ErrEmptyResponse) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return true
		case apiErr.Code == http.StatusRequestTimeout:
			return true
		case apiErr.Code >= 500:
			return true
		case apiErr.Code >= 400:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}
