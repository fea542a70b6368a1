// Package bind provides JSON bind and validation helpers for handlers
package bind

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/logger"
	"enginefeed/internal/platform/validate"
)

// JSONOptions controls parsing behavior
type JSONOptions struct {
	MaxBytes        int64 // default 1MB
	DisallowUnknown bool  // default true
	AllowEmptyBody  bool  // default false
}

func defaultJSONOptions() JSONOptions {
	return JSONOptions{
		MaxBytes:        1 << 20,
		DisallowUnknown: true,
	}
}

var jsonMore = func(dec *json.Decoder) bool { return dec.More() } // seam

// ParseJSON decodes JSON into T, validates it, and maps failures to project errors
func ParseJSON[T any](r *http.Request, opts ...JSONOptions) (T, error) {
	var zero T
	o := defaultJSONOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	b, err := readBody(r, o.MaxBytes)
	if err != nil {
		return zero, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		if o.AllowEmptyBody {
			return zero, nil
		}
		return zero, perr.JSONErrf("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	if o.DisallowUnknown {
		dec.DisallowUnknownFields()
	}
	var dst T
	if err := dec.Decode(&dst); err != nil {
		return zero, perr.JSONErrf("invalid JSON: %v", err)
	}
	if jsonMore(dec) {
		return zero, perr.JSONErrf("unexpected trailing data")
	}
	if err := validate.Struct(dst); err != nil {
		return zero, err
	}
	return dst, nil
}

// ParseArray decodes a JSON array body of free form objects, as uploaded in data batches
func ParseArray(r *http.Request, maxBytes int64) ([]map[string]any, error) {
	b, err := readBody(r, maxBytes)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, perr.JSONErrf("empty body")
	}
	if b[0] != '[' {
		return nil, perr.JSONErrf("body must be a JSON array")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out []map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, perr.JSONErrf("invalid JSON: %v", err)
	}
	return out, nil
}

// readBody reads at most maxBytes and closes the body.
// A body larger than maxBytes is a JSON error rather than a silent truncation
func readBody(r *http.Request, maxBytes int64) ([]byte, error) {
	defer func() {
		if err := r.Body.Close(); err != nil {
			logger.Get().Error().Err(err).Msg("failed to close request body")
		}
	}()
	if maxBytes <= 0 {
		maxBytes = defaultJSONOptions().MaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "read body")
	}
	if int64(len(b)) > maxBytes {
		return nil, perr.JSONErrf("body exceeds %d bytes", maxBytes)
	}
	return b, nil
}

// As re-exports errors.As to reduce import noise at call sites
func As(err error, target any) bool { return errors.As(err, target) }
