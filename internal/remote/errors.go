package remote

import (
	"fmt"

	"github.com/Veraticus/ledgersync/internal/common"
)

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	Err    error
	Method string
	Path   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap exposes both the transport class and the underlying cause.
func (e *TransportError) Unwrap() []error {
	return []error{common.ErrTransportUnavailable, e.Err}
}

// HTTPError reports a non-2xx answer from the backend.
type HTTPError struct {
	Method string
	Path   string
	Body   string
	Status int
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: server returned %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// StatusCode returns the HTTP status.
func (e *HTTPError) StatusCode() int {
	return e.Status
}

func (e *HTTPError) Unwrap() error {
	return common.ErrServerRejected
}

// DecodingError reports a 2xx response whose body did not match the
// expected shape.
type DecodingError struct {
	Err  error
	Path string
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodingError) Unwrap() []error {
	return []error{common.ErrDecodingMismatch, e.Err}
}
