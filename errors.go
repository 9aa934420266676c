package ar24

import (
	"errors"
	"fmt"

	"github.com/connected-company/ar24-go/internal/transport"
)

// ErrConfiguration is matched by every error raised before a request is
// sent: invalid settings, invalid domain values, unregistered senders.
var ErrConfiguration = errors.New("ar24: configuration error")

var (
	ErrInvalidEnvironment    = fmt.Errorf("%w: environment must be demo or prod", ErrConfiguration)
	ErrInvalidTimeout        = fmt.Errorf("%w: timeout must be positive", ErrConfiguration)
	ErrInvalidWebhook        = fmt.Errorf("%w: webhook must be an absolute URL", ErrConfiguration)
	ErrInvalidEmail          = fmt.Errorf("%w: invalid email address", ErrConfiguration)
	ErrEmptyToken            = fmt.Errorf("%w: access token is empty", ErrConfiguration)
	ErrInvalidOTPSecret      = fmt.Errorf("%w: invalid OTP secret", ErrConfiguration)
	ErrMissingOTPSecret      = fmt.Errorf("%w: sender has no OTP secret", ErrConfiguration)
	ErrAttachmentNotFound    = fmt.Errorf("%w: attachment file not found", ErrConfiguration)
	ErrAttachmentNotUploaded = fmt.Errorf("%w: attachment has no file id", ErrConfiguration)
	ErrUnregisteredUser      = fmt.Errorf("%w: sender is not registered", ErrConfiguration)
)

// APIError is an error reported by AR24 in the response envelope.
type APIError = transport.APIError

// HTTPError is an HTTP error status whose body is not an AR24 envelope.
type HTTPError = transport.HTTPError

// APIErrorCode is the code of every APIError.
const APIErrorCode = transport.APIErrorCode

var (
	// ErrServiceUnavailable matches APIErrors raised while AR24 is in maintenance.
	ErrServiceUnavailable = transport.ErrServiceUnavailable

	// ErrUnexpectedResponse matches bodies that are not a usable envelope.
	ErrUnexpectedResponse = transport.ErrUnexpectedResponse
)
