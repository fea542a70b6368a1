package http_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "enginefeed/internal/platform/errors"
	pnet "enginefeed/internal/platform/net"
	phttp "enginefeed/internal/platform/net/http"
)

// helper to build a request with a request_id in context
func reqWithReqID(method, path, rid string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	return req.WithContext(pnet.WithRequest(req.Context(), rid, ""))
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	phttp.JSON(rec, http.StatusTeapot, map[string]any{"k": "v"})
	if rec.Code != http.StatusTeapot {
		t.Fatalf("JSON status: expected 418, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Fatalf("expected content-type set")
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := reqWithReqID("GET", "/err", "rid-3")

	phttp.RespondError(rec, req, perr.WithField(perr.Validationf("bucketSpan must be at least 1"), "bucketSpan"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body phttp.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.ErrorCode != int64(perr.ErrorCodeValidation) ||
		body.Message != "bucketSpan must be at least 1" ||
		body.Cause != "bucketSpan" ||
		body.RequestID != "rid-3" {
		t.Fatalf("bad error body: %+v", body)
	}
}

func TestErrorBodyFrom(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   perr.ErrorCode
	}{
		{"not found", perr.NotFoundf("job x"), http.StatusNotFound, perr.ErrorCodeNotFound},
		{"conflict", perr.Conflictf("closed"), http.StatusConflict, perr.ErrorCodeConflict},
		{"unavailable", perr.Unavailablef("down"), http.StatusServiceUnavailable, perr.ErrorCodeUnavailable},
		{"generic", errors.New("boom"), http.StatusInternalServerError, perr.ErrorCodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := phttp.ErrorBodyFrom(tc.err, "")
			if status != tc.status || body.ErrorCode != int64(tc.code) || body.Message == "" {
				t.Fatalf("got %d %+v", status, body)
			}
		})
	}
}

func TestHandle_Statuses(t *testing.T) {
	cases := []struct {
		name  string
		resp  phttp.Response
		code  int
		empty bool
	}{
		{"ok", phttp.OK(map[string]any{"x": 1}), 200, false},
		{"created", phttp.Created(map[string]string{"id": "j1"}), 201, false},
		{"accepted nil body", phttp.Accepted(nil), 202, true},
		{"no content", phttp.NoContent(), 204, true},
		{"explicit", phttp.Status(http.StatusTeapot, "x"), 418, false},
		{"zero status", phttp.Response{Body: "x"}, 200, false},
		{"error", phttp.Error(perr.NotFoundf("nope")), 404, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := phttp.Handle(func(*http.Request) phttp.Response { return tc.resp })
			rec := httptest.NewRecorder()
			h(rec, reqWithReqID("GET", "/", "rid"))
			if rec.Code != tc.code {
				t.Fatalf("code %d want %d", rec.Code, tc.code)
			}
			if tc.empty && rec.Body.Len() != 0 {
				t.Fatalf("expected empty body, got %q", rec.Body.String())
			}
		})
	}
}

func TestHandle_HeadersAndBareBody(t *testing.T) {
	h := phttp.Handle(func(*http.Request) phttp.Response {
		resp := phttp.OK(map[string]string{"id": "abc123"})
		resp.Header = http.Header{}
		resp.Header.Set("X-Thing", "yup")
		return resp
	})
	rec := httptest.NewRecorder()
	h(rec, reqWithReqID("GET", "/hdr", "rid-8"))
	if got := rec.Header().Get("X-Thing"); got != "yup" {
		t.Fatalf("expected header override, got %q", got)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out["id"] != "abc123" {
		t.Fatalf("expected bare body, got %q (%v)", rec.Body.String(), err)
	}
}
