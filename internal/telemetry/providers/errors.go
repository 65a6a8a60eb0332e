// Package providers talks to the upstream HTTP APIs and normalizes their
// payloads into telemetry samples.
package providers

import "errors"

var (
	// ErrInvalidPayload means the upstream answered 2xx with a body that does
	// not carry the mandatory fields.
	ErrInvalidPayload = errors.New("invalid response payload")

	// ErrUpstream wraps an application-level error reported inside a 2xx body.
	ErrUpstream = errors.New("upstream api error")
)
