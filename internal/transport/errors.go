package transport

import (
	"errors"
	"fmt"
)

// APIErrorCode is the code carried by every vendor error. The API does not
// expose finer-grained codes.
const APIErrorCode = 422

const maintenanceMessage = "AR24 is currently undergoing maintenance."

var (
	// ErrServiceUnavailable matches an APIError raised for a maintenance status.
	ErrServiceUnavailable = errors.New("ar24: service unavailable")

	// ErrUnexpectedResponse indicates a body that is not a valid envelope.
	ErrUnexpectedResponse = errors.New("ar24: unexpected response")
)

// APIError is a vendor error reported through the response envelope.
type APIError struct {
	Message     string
	Slug        string
	Code        int
	Maintenance bool
}

// Error formats the vendor message with its slug when present.
func (e *APIError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("ar24 api: %s (%s)", e.Message, e.Slug)
	}
	return "ar24 api: " + e.Message
}

// Unwrap lets errors.Is(err, ErrServiceUnavailable) match maintenance errors.
func (e *APIError) Unwrap() error {
	if e.Maintenance {
		return ErrServiceUnavailable
	}
	return nil
}

// HTTPError is returned when the server answers with an error status and a
// body that is not an envelope (proxy pages, gateway errors).
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error includes the status code and the truncated body.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("ar24: unexpected HTTP %d: %s", e.StatusCode, e.Body)
}
