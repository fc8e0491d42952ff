package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies an upstream fetch failure. The kind drives the retry
// policy: rate-limit errors are never retried, network and timeout errors get
// the longest retry budget.
type Kind int

const (
	KindNetwork Kind = iota
	KindRateLimit
	KindServer
	KindTimeout
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimit:
		return "rate-limit"
	case KindServer:
		return "server"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

// Error is a typed upstream failure carrying the originating capability and
// endpoint for diagnostics.
type Error struct {
	Kind       Kind
	Capability string
	Endpoint   string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s fetch failed (%s, %s): %v", e.Capability, e.Kind, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, capability, endpoint string, err error) *Error {
	return &Error{Kind: kind, Capability: capability, Endpoint: endpoint, Err: err}
}

// KindOf extracts the failure kind from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsRateLimit reports whether err is a rate-limit failure.
func IsRateLimit(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindRateLimit
}
