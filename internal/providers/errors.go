package providers

import (
	"errors"
	"fmt"
)

var (
	ErrTransport         = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
)

// TransportError reports a network failure or a non-2xx response.
// StatusCode is zero when no response was received. A set StatusCode with a
// non-nil Err means the body could not be read.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("GET %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
		}
		if e.Body != "" {
			return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// MalformedResponseError reports a payload whose structure the adapter cannot use.
type MalformedResponseError struct {
	Source string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Source, e.Reason)
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

func Malformed(source, format string, args ...any) error {
	return &MalformedResponseError{Source: source, Reason: fmt.Sprintf(format, args...)}
}
