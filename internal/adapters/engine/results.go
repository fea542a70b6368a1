package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	perr "enginefeed/internal/platform/errors"
)

// ResultsPage fetches one page of a job's buckets
func (c *Client) ResultsPage(ctx context.Context, jobID JobID, skip, take int, expand bool) (Page, error) {
	const op = "results_page"
	if err := requireJob(op, jobID); err != nil {
		return Page{}, err
	}
	if skip < 0 || take <= 0 {
		return Page{}, perr.WithOp(perr.InvalidArgf("engine %s: skip %d take %d out of range", op, skip, take), op)
	}
	_, b, err := c.do(ctx, call{
		op:     op,
		jobID:  jobID,
		method: http.MethodGet,
		path:   jobPath("/results", jobID),
		query:  fmt.Sprintf("skip=%d&take=%d&%s", skip, take, expandQuery(expand)),
		want:   http.StatusOK,
	})
	if err != nil {
		return Page{}, err
	}
	var p Page
	if err := json.Unmarshal(b, &p); err != nil {
		return Page{}, perr.WithOp(perr.Wrapf(err, perr.ErrorCodeJSON, "decode results page at skip %d", skip), op)
	}
	return p, nil
}

// GetResults walks every page of the job's results and returns the buckets
// in server order. Any page failure fails the whole call; partial results are discarded
func (c *Client) GetResults(ctx context.Context, jobID JobID, expand bool) ([]Bucket, error) {
	it := c.Results(jobID, expand)
	out := []Bucket{}
	for it.Next(ctx) {
		out = append(out, it.Bucket())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	c.log.Debug().Str("job_id", jobID).Int("buckets", len(out)).Int("pages", it.PagesFetched()).Msg("engine results fetched")
	return out, nil
}

// Results returns a lazy forward only iterator over the job's buckets.
// Pages are requested on demand with the client's page size
func (c *Client) Results(jobID JobID, expand bool) *ResultIterator {
	return &ResultIterator{c: c, jobID: jobID, expand: expand, take: c.opts.PageSize}
}

// ResultIterator walks a job's buckets one page at a time.
// It is not safe for concurrent use
type ResultIterator struct {
	c      *Client
	jobID  JobID
	expand bool
	take   int

	skip  int
	buf   []Bucket
	idx   int
	cur   Bucket
	last  bool
	err   error
	pages int
}

// Next advances to the next bucket, fetching the next page when the
// current one is used up. It returns false at the end or on error
func (it *ResultIterator) Next(ctx context.Context) bool {
	for {
		if it.err != nil {
			return false
		}
		if it.idx < len(it.buf) {
			it.cur = it.buf[it.idx]
			it.idx++
			return true
		}
		if it.last {
			return false
		}
		p, err := it.c.ResultsPage(ctx, it.jobID, it.skip, it.take, it.expand)
		if err != nil {
			it.err = err
			it.buf = nil
			return false
		}
		it.pages++
		it.buf, it.idx = p.Documents, 0
		if !p.NextPage.Present {
			it.last = true
			continue
		}
		// an empty page that still points forward would loop forever
		if len(p.Documents) == 0 {
			it.err = perr.WithOp(perr.Newf(perr.ErrorCodeStatus,
				"engine results: empty page at skip %d claims a next page", it.skip), "results_page")
			return false
		}
		it.skip += it.take
	}
}

// Bucket returns the bucket Next moved to
func (it *ResultIterator) Bucket() Bucket { return it.cur }

// Err returns the failure that stopped iteration, if any
func (it *ResultIterator) Err() error { return it.err }

// PagesFetched counts pages requested since the last Reset
func (it *ResultIterator) PagesFetched() int { return it.pages }

// Reset rewinds the iterator to skip 0; the next call to Next refetches
func (it *ResultIterator) Reset() {
	it.skip, it.idx, it.pages = 0, 0, 0
	it.buf, it.cur, it.last, it.err = nil, Bucket{}, false, nil
}

// All adapts the iterator to a range over func. Iteration stops after the
// first error, which is yielded with a zero Bucket
func (it *ResultIterator) All(ctx context.Context) iter.Seq2[Bucket, error] {
	return func(yield func(Bucket, error) bool) {
		for it.Next(ctx) {
			if !yield(it.Bucket(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(Bucket{}, err)
		}
	}
}
