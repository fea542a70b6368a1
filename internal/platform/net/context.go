// Package net provides utilities for working with request contexts
package net

import (
	"context"

	"enginefeed/internal/platform/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// WithRequest annotates ctx with the request id and the job it targets.
// The ids are visible to both chi and the request scoped logger
func WithRequest(ctx context.Context, reqID, jobID string) context.Context {
	if reqID != "" {
		// set chi RequestID so chimw.GetReqID can retrieve it
		ctx = context.WithValue(ctx, chimw.RequestIDKey, reqID)
	}
	return logger.WithRequest(ctx, reqID, jobID)
}

// RequestID returns the request id on the context if present
func RequestID(ctx context.Context) string { return chimw.GetReqID(ctx) }

// JobID returns the job id on the context if present
func JobID(ctx context.Context) string { return logger.JobID(ctx) }
