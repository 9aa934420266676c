package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	statusMaintenance = "maintenance"
	statusError       = "error"
)

// maxErrorBody bounds how much of a non-envelope body ends up in an error.
const maxErrorBody = 512

// envelope is the uniform wrapper of every response body.
type envelope struct {
	Status  string          `json:"status"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
	Slug    string          `json:"slug"`
}

// Result is a successful envelope: the vendor status and the raw payload.
type Result struct {
	Status  string
	Payload json.RawMessage
}

// Decode validates the envelope of a response body. Maintenance and error
// statuses become *APIError; anything else returns the raw result payload.
func Decode(statusCode int, body []byte) (*Result, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if statusCode >= http.StatusBadRequest {
			return nil, newHTTPError(statusCode, body)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	switch {
	case strings.EqualFold(env.Status, statusMaintenance):
		return nil, &APIError{
			Message:     maintenanceMessage,
			Code:        APIErrorCode,
			Maintenance: true,
		}
	case strings.EqualFold(env.Status, statusError):
		return nil, &APIError{
			Message: env.Message,
			Slug:    env.Slug,
			Code:    APIErrorCode,
		}
	case env.Status == "":
		if statusCode >= http.StatusBadRequest {
			return nil, newHTTPError(statusCode, body)
		}
		return nil, fmt.Errorf("%w: missing status", ErrUnexpectedResponse)
	}

	return &Result{Status: env.Status, Payload: env.Result}, nil
}

func newHTTPError(statusCode int, body []byte) *HTTPError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &HTTPError{StatusCode: statusCode, Body: string(body)}
}
