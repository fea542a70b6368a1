// Package http provides the chi backed server plumbing and JSON response helpers.
// Bodies are written bare, as the engine API does; errors use the engine's
// {errorCode, message, cause} shape
package http

import (
	"encoding/json"
	stdhttp "net/http"

	perr "enginefeed/internal/platform/errors"
	pnet "enginefeed/internal/platform/net"
)

// ErrorBody is the wire form of a failed request
type ErrorBody struct {
	ErrorCode int64  `json:"errorCode"`
	Message   string `json:"message"`
	Cause     string `json:"cause,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorBodyFrom maps an error to its status and wire body.
// Non project errors are reported as unknown with a generic message
func ErrorBodyFrom(err error, reqID string) (int, ErrorBody) {
	status := perr.HTTPStatus(err)
	e, ok := perr.As(err)
	if !ok {
		return status, ErrorBody{
			ErrorCode: int64(perr.ErrorCodeUnknown),
			Message:   err.Error(),
			RequestID: reqID,
		}
	}
	body := ErrorBody{
		ErrorCode: int64(e.Code()),
		Message:   e.Message(),
		RequestID: reqID,
	}
	if f := e.Field(); f != "" {
		body.Cause = f
	}
	return status, body
}

// JSON writes v as application/json with the given status
func JSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError maps a project error into an error body and writes it
func RespondError(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	status, body := ErrorBodyFrom(err, pnet.RequestID(r.Context()))
	JSON(w, status, body)
}

//
// Return-style helpers for early returns in handlers
//

// Response is a functional response object for return-style handlers
type Response struct {
	Status int
	Body   any
	// optional headers if a handler wants to add any
	Header stdhttp.Header
}

// Handle adapts a Response-returning handler to net/http
func Handle(h func(r *stdhttp.Request) Response) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		h(r).write(w, r)
	}
}

func (resp Response) write(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if err, ok := resp.Body.(error); ok && err != nil {
		RespondError(w, r, err)
		return
	}
	status := resp.Status
	if status == 0 {
		status = stdhttp.StatusOK
	}
	if status == stdhttp.StatusNoContent || resp.Body == nil {
		w.WriteHeader(status)
		return
	}
	JSON(w, status, resp.Body)
}

// OK returns a 200 response
func OK(data any) Response { return Response{Status: stdhttp.StatusOK, Body: data} }

// Created returns a 201 response
func Created(data any) Response { return Response{Status: stdhttp.StatusCreated, Body: data} }

// Accepted returns a 202 response; data may be nil
func Accepted(data any) Response { return Response{Status: stdhttp.StatusAccepted, Body: data} }

// NoContent returns a 204 response
func NoContent() Response { return Response{Status: stdhttp.StatusNoContent} }

// Status returns a response with an explicit status and body
func Status(status int, data any) Response { return Response{Status: status, Body: data} }

// Error returns a response that maps the error to status and body
func Error(err error) Response { return Response{Body: err} }
