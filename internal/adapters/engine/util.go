package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	perr "enginefeed/internal/platform/errors"
)

// StatusError reports an engine response whose status was not the one the operation expects
type StatusError struct {
	Op     string
	JobID  string
	Status int
	Body   string
	API    *APIError
}

// Error interface
func (e *StatusError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "engine %s", e.Op)
	if e.JobID != "" {
		fmt.Fprintf(&sb, " job %s", e.JobID)
	}
	fmt.Fprintf(&sb, ": unexpected status %d", e.Status)
	switch {
	case e.API != nil && e.API.Message != "":
		fmt.Fprintf(&sb, ": %s", e.API.Message)
		if e.API.ErrorCode != 0 {
			fmt.Fprintf(&sb, " (code %d)", e.API.ErrorCode)
		}
	case e.Body != "":
		fmt.Fprintf(&sb, ": %s", e.Body)
	}
	return sb.String()
}

// HTTPStatus interface
func (e *StatusError) HTTPStatus() int { return e.Status }

func newStatusError(op, jobID string, status int, body []byte) *StatusError {
	se := &StatusError{Op: op, JobID: jobID, Status: status}
	tail := body
	if len(tail) > errBodyTail {
		tail = tail[:errBodyTail]
	}
	se.Body = strings.TrimSpace(string(tail))
	var api APIError
	if len(body) > 0 && json.Unmarshal(body, &api) == nil && (api.Message != "" || api.ErrorCode != 0) {
		se.API = &api
	}
	return se
}

// wrap attaches a project error code derived from the status
func (e *StatusError) wrap() error {
	return perr.WithOp(perr.Wrapf(e, statusCode(e.Status), "engine %s failed", e.Op), e.Op)
}

// notFound builds the error for a 200 answer that carries no document
func notFound(op, jobID, what string) error {
	se := &StatusError{Op: op, JobID: jobID, Status: http.StatusOK, Body: what + " does not exist"}
	return perr.WithOp(perr.Wrapf(se, perr.ErrorCodeNotFound, "engine %s failed", op), op)
}

func statusCode(status int) perr.ErrorCode {
	switch status {
	case http.StatusNotFound:
		return perr.ErrorCodeNotFound
	case http.StatusConflict:
		return perr.ErrorCodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return perr.ErrorCodeInvalidArgument
	case http.StatusTooManyRequests:
		return perr.ErrorCodeTooManyRequests
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return perr.ErrorCodeUnavailable
	default:
		return perr.ErrorCodeStatus
	}
}

// AsStatus returns the *StatusError in err's chain, if any
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or 0 when no response was received
func StatusOf(err error) int {
	if se, ok := AsStatus(err); ok {
		return se.Status
	}
	return 0
}

// IsStatus reports whether err carries the given HTTP status
func IsStatus(err error, status int) bool { return StatusOf(err) == status }

// IsNotFound reports whether err means the job or bucket does not exist
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound) || perr.IsCode(err, perr.ErrorCodeNotFound)
}

// IsTransient reports whether repeating the same request may succeed
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if StatusOf(err) == http.StatusInternalServerError {
		return true
	}
	return perr.Retryable(err)
}

func escape(s string) string { return url.PathEscape(s) }
