package proxy

import (
	"errors"
	"net/http"
)

var (
	ErrMissingTarget   = errors.New("TARGET_DOMAIN is not set")
	ErrMissingServices = errors.New("SERVICE_1 and SERVICE_2 must be set")
	ErrInvalidOrigin   = errors.New("invalid origin")
	ErrInvalidBody     = errors.New("invalid request body")
	ErrUpstreamTimeout = errors.New("upstream request timed out")
	ErrUpstreamsFailed = errors.New("both upstreams failed")
)

// failoverMessage is the error message of a 503 response.
const failoverMessage = "Service Unavailable: Both upstreams failed."

var wellKnownErrors = map[error]int{
	ErrMissingTarget:   http.StatusInternalServerError,
	ErrMissingServices: http.StatusInternalServerError,
	ErrInvalidOrigin:   http.StatusInternalServerError,
	ErrInvalidBody:     http.StatusBadRequest,
	ErrUpstreamsFailed: http.StatusServiceUnavailable,
}

// ErrorResponse is the JSON body of every error produced by the proxy.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details *FailoverError `json:"details,omitempty"`
}

// FailoverError describes why both origins of the dual mode failed.
type FailoverError struct {
	Primary string `json:"primary"`
	Backup  string `json:"backup"`
}

func (e *FailoverError) Error() string {
	return ErrUpstreamsFailed.Error() + ": primary: " + e.Primary + ", backup: " + e.Backup
}

func (e *FailoverError) Unwrap() error {
	return ErrUpstreamsFailed
}

// getErrorStatusCode returns the status code for the given error.
func getErrorStatusCode(err error) int {
	for known, status := range wellKnownErrors {
		if errors.Is(err, known) {
			return status
		}
	}

	return http.StatusInternalServerError
}

// newErrorResponse creates the JSON body for the given error.
func newErrorResponse(err error) ErrorResponse {
	var failover *FailoverError
	if errors.As(err, &failover) {
		return ErrorResponse{
			Error:   failoverMessage,
			Details: failover,
		}
	}

	return ErrorResponse{Error: err.Error()}
}
