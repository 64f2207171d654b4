package catgenie

import (
	"errors"
	"fmt"
)

// Kind classifies a client failure.
type Kind int

const (
	// KindUnknown covers anything the client did not expect: bad JSON, a
	// missing token field, a request that could not be built.
	KindUnknown Kind = iota
	// KindAuthentication means the vendor rejected the credentials (401/403).
	KindAuthentication
	// KindCommunication covers timeouts, connection failures and unexpected
	// HTTP statuses.
	KindCommunication
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindCommunication:
		return "communication"
	default:
		return "unknown"
	}
}

// APIError is the only error type returned by Client methods.
type APIError struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("catgenie %s: %s error", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, status int, err error) *APIError {
	return &APIError{Kind: kind, Op: op, Status: status, Err: err}
}

// KindOf returns the kind of the first APIError in err's chain.
func KindOf(err error) (Kind, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return KindUnknown, false
	}
	return apiErr.Kind, true
}

func IsAuthentication(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindAuthentication
}

func IsCommunication(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindCommunication
}
