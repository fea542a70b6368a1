package enginetest

import (
	"net/http"
	"time"
)

// Operation names, matching the client's op labels
const (
	OpCreateJob   = "create_job"
	OpUpload      = "upload"
	OpCloseJob    = "close_job"
	OpResultsPage = "results_page"
	OpGetBucket   = "get_bucket"
	OpListJobs    = "list_jobs"
	OpGetJob      = "get_job"
	OpDeleteJob   = "delete_job"
)

// Fault replaces one response for an operation.
// Status 0 with a Delay only slows the real response down
type Fault struct {
	Status int
	// Body is written verbatim; empty means an engine error body
	Body  string
	Delay time.Duration
}

// Fail queues faults for op; each matching request consumes one, in order
func (e *Engine) Fail(op string, faults ...Fault) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[op] = append(e.faults[op], faults...)
}

// FailNext is Fail with a single status fault
func (e *Engine) FailNext(op string, status int) { e.Fail(op, Fault{Status: status}) }

// takeFault counts the call and pops the next queued fault for op
func (e *Engine) takeFault(op string) (Fault, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[op]++
	q := e.faults[op]
	if len(q) == 0 {
		return Fault{}, false
	}
	f := q[0]
	e.faults[op] = q[1:]
	return f, true
}

// apply sleeps and writes the fault. It reports whether the response was written
func (f Fault) apply(w http.ResponseWriter, r *http.Request) bool {
	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.Context().Done():
			return true
		}
	}
	if f.Status == 0 {
		return false
	}
	if f.Body != "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(f.Status)
		_, _ = w.Write([]byte(f.Body))
		return true
	}
	writeError(w, r, f.Status, "injected failure")
	return true
}
