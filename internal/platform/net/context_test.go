package net_test

import (
	"context"
	"testing"

	pnet "enginefeed/internal/platform/net"
)

func TestWithRequest(t *testing.T) {
	base := context.Background()
	cases := []struct {
		name, req, job string
	}{
		{"both", "req-123", "farequote"},
		{"request only", "req-123", ""},
		{"job only", "", "farequote"},
		{"neither", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := pnet.WithRequest(base, tc.req, tc.job)
			if got := pnet.RequestID(ctx); got != tc.req {
				t.Fatalf("RequestID %q want %q", got, tc.req)
			}
			if got := pnet.JobID(ctx); got != tc.job {
				t.Fatalf("JobID %q want %q", got, tc.job)
			}
			if tc.req == "" && tc.job == "" && ctx != base {
				t.Fatalf("empty ids should leave ctx unchanged")
			}
		})
	}
}
