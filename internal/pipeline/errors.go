package pipeline

import (
	"errors"
	"fmt"
)

// TransportError is an HTTP-level failure: the request never completed, or
// the server answered with a non-success status outside the rate-limit
// protocol.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: GET %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transport: GET %s: status=%d", e.URL, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means the provider answered successfully but the body was not
// valid JSON. Deterministic, so retrying the same message cannot help.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: GET %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrRateLimitPolicy reports a rate-limit rejection after the provider's own
// recorded reset time had already passed. The provider broke its quota
// contract; retrying would loop forever against a real outage.
var ErrRateLimitPolicy = errors.New("rate limit rejected after recorded reset time elapsed")

// Retryable reports whether a bounded in-process retry is worth attempting
// before the worker exits and leaves the message for redelivery. Network
// failures and server-side 5xx responses qualify; everything else is either
// deterministic (decode), a protocol violation (ack mismatch, rate-limit
// policy), or already handled below this layer.
func Retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Err != nil || te.Status >= 500
	}
	return false
}
