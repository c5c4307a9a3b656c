package ws

import (
	"errors"
	"fmt"
)

// TransportError means the remote call never completed: connectivity,
// DNS, timeouts, or a server-side failure. The operation is retryable
// and local data must be preserved.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BusinessRejection means the remote service understood the request and
// refused it. Retrying with the same payload is pointless; the caller
// should drop the local data and surface a warning.
type BusinessRejection struct {
	Op        string
	ErrorCode string
	Message   string
}

func (e *BusinessRejection) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s rejected by remote (%s): %s", e.Op, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("%s rejected by remote: %s", e.Op, e.Message)
}

// IsTransportError reports whether err stems from a failed remote call.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsBusinessRejection reports whether the remote refused the request.
func IsBusinessRejection(err error) bool {
	var br *BusinessRejection
	return errors.As(err, &br)
}

// ErrSiteNotConfigured is returned when a site id has no registered
// endpoint.
var ErrSiteNotConfigured = errors.New("site not configured")
