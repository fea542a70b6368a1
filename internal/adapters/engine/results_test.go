package engine_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/adapters/engine/enginetest"
	perr "enginefeed/internal/platform/errors"
)

func seedBuckets(n int) []engine.Bucket {
	out := make([]engine.Bucket, n)
	t0 := time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = engine.Bucket{
			ID:           "b" + strconv.Itoa(i+1),
			Timestamp:    t0.Add(time.Duration(i) * time.Hour),
			AnomalyScore: float64(i * 10),
			EventCount:   int64(100 + i),
			RecordCount:  1,
			Records: []engine.AnomalyRecord{{
				ID:          fmt.Sprintf("b%d-0", i+1),
				Function:    "count",
				Probability: 0.01,
			}},
		}
	}
	return out
}

func ids(bs []engine.Bucket) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

// pagedServer serves pages verbatim by call order and records each query
type pagedServer struct {
	mu      sync.Mutex
	pages   []string
	queries []string
}

func (p *pagedServer) handle(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	n := len(p.queries)
	p.queries = append(p.queries, r.URL.Path+"?"+r.URL.RawQuery)
	p.mu.Unlock()
	if n >= len(p.pages) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if p.pages[n] == "500" {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"shard failure"}`)
		return
	}
	_, _ = io.WriteString(w, p.pages[n])
}

func TestGetResults_StitchesPagesInOrder(t *testing.T) {
	ps := &pagedServer{pages: []string{
		`{"hitCount":5,"skip":0,"take":2,"nextPage":true,"previousPage":false,"documents":[{"id":"b1"},{"id":"b2"}]}`,
		`{"hitCount":5,"skip":2,"take":2,"nextPage":true,"previousPage":true,"documents":[{"id":"b3"},{"id":"b4"}]}`,
		`{"hitCount":5,"skip":4,"take":2,"nextPage":false,"previousPage":true,"documents":[{"id":"b5"}]}`,
	}}
	c := newRaw(t, ps.handle, engine.Options{PageSize: 2, BasePath: "/engine/v2"})

	got, err := c.GetResults(context.Background(), "farequote", false)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if want := []string{"b1", "b2", "b3", "b4", "b5"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("ids got %v want %v", ids(got), want)
	}
	wantQ := []string{
		"/engine/v2/results/farequote?skip=0&take=2&expand=false",
		"/engine/v2/results/farequote?skip=2&take=2&expand=false",
		"/engine/v2/results/farequote?skip=4&take=2&expand=false",
	}
	if !reflect.DeepEqual(ps.queries, wantQ) {
		t.Fatalf("queries got %v want %v", ps.queries, wantQ)
	}
}

func TestGetResults_NextPageAsLink(t *testing.T) {
	ps := &pagedServer{pages: []string{
		`{"hitCount":3,"skip":0,"take":2,"nextPage":"http://engine/results/j?skip=2&take=2","previousPage":null,"documents":[{"id":"1"},{"id":"2"}]}`,
		`{"hitCount":3,"skip":2,"take":2,"nextPage":null,"previousPage":"http://engine/results/j?skip=0&take=2","documents":[{"id":"3"}]}`,
	}}
	c := newRaw(t, ps.handle, engine.Options{PageSize: 2})

	got, err := c.GetResults(context.Background(), "j", true)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if want := []string{"1", "2", "3"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("ids got %v want %v", ids(got), want)
	}
	if len(ps.queries) != 2 || ps.queries[1] != "/results/j?skip=2&take=2&expand=true" {
		t.Fatalf("queries %v", ps.queries)
	}
}

func TestGetResults_AgainstStub(t *testing.T) {
	e, c := newStub(t, engine.Options{PageSize: 2})
	e.Seed("seeded", seedBuckets(5))
	ctx := context.Background()

	first, err := c.GetResults(ctx, "seeded", false)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if want := []string{"b1", "b2", "b3", "b4", "b5"}; !reflect.DeepEqual(ids(first), want) {
		t.Fatalf("ids got %v want %v", ids(first), want)
	}
	if n := e.Calls(enginetest.OpResultsPage); n != 3 {
		t.Fatalf("pages requested %d want 3", n)
	}
	for _, b := range first {
		if b.Records != nil {
			t.Fatalf("bucket %s has records without expand", b.ID)
		}
	}

	// repeated reads of a finished job are identical
	second, err := c.GetResults(ctx, "seeded", false)
	if err != nil || !reflect.DeepEqual(first, second) {
		t.Fatalf("second read differs: err=%v", err)
	}

	expanded, err := c.GetResults(ctx, "seeded", true)
	if err != nil || len(expanded) != 5 || len(expanded[4].Records) != 1 || expanded[4].Records[0].ID != "b5-0" {
		t.Fatalf("expanded read: %+v err=%v", expanded, err)
	}
}

func TestGetResults_EmptyJobIsEmptyNotError(t *testing.T) {
	e, c := newStub(t, engine.Options{})
	e.Seed("empty", nil)

	got, err := c.GetResults(context.Background(), "empty", false)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non nil slice, got %#v", got)
	}
}

func TestGetResults_FailureDiscardsPartialResults(t *testing.T) {
	cases := []struct {
		name  string
		pages []string
		code  perr.ErrorCode
	}{
		{"second page 500", []string{
			`{"hitCount":4,"nextPage":true,"documents":[{"id":"1"},{"id":"2"}]}`,
			"500",
		}, perr.ErrorCodeStatus},
		{"second page malformed", []string{
			`{"hitCount":4,"nextPage":true,"documents":[{"id":"1"},{"id":"2"}]}`,
			`{"hitCount":4,"documents":[{"id":`,
		}, perr.ErrorCodeJSON},
		{"empty page pointing forward", []string{
			`{"hitCount":4,"nextPage":true,"documents":[]}`,
		}, perr.ErrorCodeStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ps := &pagedServer{pages: tc.pages}
			c := newRaw(t, ps.handle, engine.Options{PageSize: 2})

			got, err := c.GetResults(context.Background(), "j", false)
			if err == nil || got != nil {
				t.Fatalf("expected failure without buckets, got %v err=%v", got, err)
			}
			if perr.CodeOf(err) != tc.code {
				t.Fatalf("code got %v want %v (%v)", perr.CodeOf(err), tc.code, err)
			}
		})
	}
}

func TestGetResults_UnknownJob(t *testing.T) {
	_, c := newStub(t, engine.Options{})
	_, err := c.GetResults(context.Background(), "missing", false)
	if !engine.IsNotFound(err) || engine.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if _, err := c.GetResults(context.Background(), "", false); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestResultsPage_RejectsBadWindow(t *testing.T) {
	_, c := newStub(t, engine.Options{})
	for _, w := range [][2]int{{-1, 10}, {0, 0}, {0, -5}} {
		if _, err := c.ResultsPage(context.Background(), "j", w[0], w[1], false); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
			t.Fatalf("window %v: expected invalid argument, got %v", w, err)
		}
	}
}

func TestResultIterator_LazyPagesAndReset(t *testing.T) {
	e, c := newStub(t, engine.Options{PageSize: 2})
	e.Seed("seeded", seedBuckets(5))
	ctx := context.Background()

	it := c.Results("seeded", false)
	if !it.Next(ctx) || it.Bucket().ID != "b1" {
		t.Fatalf("first bucket %q err=%v", it.Bucket().ID, it.Err())
	}
	if it.PagesFetched() != 1 {
		t.Fatalf("pages after first bucket %d", it.PagesFetched())
	}
	_ = it.Next(ctx)
	_ = it.Next(ctx)
	if it.Bucket().ID != "b3" || it.PagesFetched() != 2 {
		t.Fatalf("third bucket %q pages %d", it.Bucket().ID, it.PagesFetched())
	}

	it.Reset()
	var seen []string
	for b, err := range it.All(ctx) {
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		seen = append(seen, b.ID)
	}
	if want := []string{"b1", "b2", "b3", "b4", "b5"}; !reflect.DeepEqual(seen, want) {
		t.Fatalf("after reset got %v want %v", seen, want)
	}
	if it.PagesFetched() != 3 {
		t.Fatalf("pages after full walk %d", it.PagesFetched())
	}
	if it.Next(ctx) {
		t.Fatalf("exhausted iterator advanced")
	}
}

func TestResultIterator_StopsAtFirstError(t *testing.T) {
	e, c := newStub(t, engine.Options{PageSize: 2})
	e.Seed("seeded", seedBuckets(5))
	e.Fail(enginetest.OpResultsPage, enginetest.Fault{Status: 0}, enginetest.Fault{Status: http.StatusBadGateway})

	var seen []string
	var gotErr error
	for b, err := range c.Results("seeded", false).All(context.Background()) {
		if err != nil {
			gotErr = err
			break
		}
		seen = append(seen, b.ID)
	}
	if len(seen) != 2 || !perr.IsCode(gotErr, perr.ErrorCodeUnavailable) {
		t.Fatalf("seen %v err %v", seen, gotErr)
	}
}

func TestGetBucket(t *testing.T) {
	e, c := newStub(t, engine.Options{})
	e.Seed("seeded", seedBuckets(3))
	ctx := context.Background()

	b, err := c.GetBucket(ctx, "seeded", "b2", true)
	if err != nil || b.ID != "b2" || b.EventCount != 101 || len(b.Records) != 1 {
		t.Fatalf("GetBucket %+v err=%v", b, err)
	}
	b, err = c.GetBucket(ctx, "seeded", "b2", false)
	if err != nil || b.Records != nil {
		t.Fatalf("GetBucket without expand %+v err=%v", b, err)
	}

	b, err = c.GetBucket(ctx, "seeded", "b9", false)
	if !engine.IsNotFound(err) || engine.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("missing bucket: %v", err)
	}
	if !reflect.DeepEqual(b, engine.Bucket{}) {
		t.Fatalf("missing bucket returned data %+v", b)
	}

	if _, err := c.GetBucket(ctx, "seeded", "", false); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestGetBucket_OKWithoutDocument(t *testing.T) {
	c := newRaw(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"exists":false,"type":"bucket"}`)
	}, engine.Options{})

	_, err := c.GetBucket(context.Background(), "j", "1393677000", false)
	if !engine.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if engine.StatusOf(err) != http.StatusOK {
		t.Fatalf("status %d", engine.StatusOf(err))
	}
}

func TestStub_ComputedBuckets(t *testing.T) {
	e, c := newStub(t, engine.Options{})
	ctx := context.Background()
	id, err := c.CreateJob(ctx, jobConfig())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// steady traffic for five minutes then a burst
	var rows []map[string]any
	t0 := int64(1393677000)
	for m := range int64(5) {
		for i := range int64(3) {
			rows = append(rows, map[string]any{"time": t0 + m*60 + i, "host": "a"})
		}
	}
	for i := range int64(30) {
		rows = append(rows, map[string]any{"time": t0 + 5*60 + i, "host": "a"})
	}
	if _, err := c.Upload(ctx, id, rows); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := c.CloseJob(ctx, id); err != nil {
		t.Fatalf("CloseJob: %v", err)
	}

	got, err := c.GetResults(ctx, id, true)
	if err != nil || len(got) != 6 {
		t.Fatalf("results %d err=%v", len(got), err)
	}
	for i, b := range got[:5] {
		if b.AnomalyScore != 0 || b.EventCount != 3 {
			t.Fatalf("steady bucket %d scored %+v", i, b)
		}
	}
	last := got[5]
	if last.AnomalyScore <= 50 || last.EventCount != 30 || len(last.Records) != 1 || last.IsInterim {
		t.Fatalf("burst bucket %+v", last)
	}
	if last.ID != strconv.FormatInt(t0+300, 10) {
		t.Fatalf("bucket id %s", last.ID)
	}
	if d, _ := e.Job(id); d.Counts.BucketCount != 6 {
		t.Fatalf("bucket count %d", d.Counts.BucketCount)
	}
}
