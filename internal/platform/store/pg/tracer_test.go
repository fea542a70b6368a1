package pg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"enginefeed/internal/platform/logger"

	"github.com/rs/zerolog"
)

func TestCompact(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"select 1", "select 1"},
		{"  select   1  ", " select 1 "},
		{"SELECT\t*\nFROM\r\ttable WHERE  a =  1", "SELECT * FROM table WHERE a = 1"},
		{"\n\nA\n\tB  C\r\nD", " A B C D"},
		{"", ""},
	}
	for i, c := range cases {
		if got := compact(c.in); got != c.want {
			t.Fatalf("case %d: compact(%q) = %q, want %q", i, c.in, got, c.want)
		}
	}
}

type logLine struct {
	Level     string  `json:"level"`
	ElapsedMS float64 `json:"elapsed_ms"`
	Slow      bool    `json:"slow"`
	SQL       string  `json:"sql"`
	Args      []any   `json:"args"`
	Error     string  `json:"error"`
	Message   string  `json:"message"`
	Component string  `json:"component"`
	JobID     string  `json:"job_id"`
}

func trace(t *testing.T, ctx context.Context, ev QueryEvent) logLine {
	t.Helper()
	var buf bytes.Buffer
	Tracer(zerolog.New(&buf)).OnQuery(ctx, ev)
	var line logLine
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("unmarshal log: %v\nraw=%s", err, buf.String())
	}
	return line
}

func TestTracer_Levels(t *testing.T) {
	t.Parallel()

	ev := QueryEvent{
		SQL:       "INSERT INTO  feed_buckets \n VALUES ($1, $2)",
		Args:      []any{"job-1", "1393677000"},
		ElapsedUS: 12345,
	}
	line := trace(t, context.Background(), ev)
	if line.Level != "info" || line.Message != "pg query" || line.Component != "pg" {
		t.Fatalf("info line %+v", line)
	}
	if math.Abs(line.ElapsedMS-12.345) > 0.0005 {
		t.Fatalf("elapsed_ms got %v", line.ElapsedMS)
	}
	if line.SQL != "INSERT INTO feed_buckets VALUES ($1, $2)" {
		t.Fatalf("sql %q", line.SQL)
	}
	if len(line.Args) != 2 || line.Args[0] != "job-1" {
		t.Fatalf("args %#v", line.Args)
	}

	ev.Slow = true
	if line := trace(t, context.Background(), ev); line.Level != "warn" || !line.Slow {
		t.Fatalf("slow line %+v", line)
	}

	ev.Slow = false
	ev.Err = errors.New("boom")
	if line := trace(t, context.Background(), ev); line.Level != "warn" || line.Error != "boom" {
		t.Fatalf("error line %+v", line)
	}
}

func TestTracer_CarriesJobID(t *testing.T) {
	t.Parallel()

	ctx := logger.WithJob(context.Background(), "farequote")
	if line := trace(t, ctx, QueryEvent{SQL: "SELECT 1"}); line.JobID != "farequote" {
		t.Fatalf("job_id %q", line.JobID)
	}
}
