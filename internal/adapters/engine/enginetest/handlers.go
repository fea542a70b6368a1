package enginetest

import (
	"net/http"
	"strconv"
	"time"

	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/modkit/httpkit"
	perr "enginefeed/internal/platform/errors"
	pnet "enginefeed/internal/platform/net"
	phttp "enginefeed/internal/platform/net/http"
	"enginefeed/internal/platform/net/http/bind"
	"enginefeed/internal/platform/net/middleware"
	ptime "enginefeed/internal/platform/time"

	"github.com/go-chi/chi/v5"
)

// Handler returns the engine API mounted at the configured base path
func (e *Engine) Handler() http.Handler {
	r := phttp.AdaptChi(chi.NewRouter())
	e.Install(r)
	httpkit.MountUnder(r, e.BasePath(), nil, e.Mount)
	return r.Mux()
}

// Install adds the stub's middleware, health, profiler and not found routes to r
func (e *Engine) Install(r phttp.Router) {
	r.Use(middleware.Defaults()...)
	if len(e.opts.CORSOrigins) > 0 {
		r.Use(middleware.CORS(middleware.CORSOptions{AllowedOrigins: e.opts.CORSOrigins}))
	}
	r.Use(
		middleware.Heartbeat("/healthz"),
		middleware.AccessLogZerolog(middleware.AccessLogOptions{Slow: time.Second}),
	)
	phttp.MountProfiler(r, "/debug", e.opts.Profiler)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "no such endpoint "+r.URL.Path)
	})
}

// BasePath is the normalized prefix the API is served under
func (e *Engine) BasePath() string { return engine.NormalizeBasePath(e.opts.BasePath) }

// Mount registers the engine routes on r
func (e *Engine) Mount(r phttp.Router) {
	r.Group(func(g phttp.Router) {
		g.Use(middleware.RequestContext)
		g.Post("/jobs", e.guard(OpCreateJob, phttp.JSONHandler(e.createJob)))
		g.Get("/jobs", e.guard(OpListJobs, phttp.JSONHandlerNoBody(e.listJobs)))
		g.Get("/jobs/{jobId}", e.guard(OpGetJob, phttp.JSONHandlerNoBody(e.getJob)))
		g.Delete("/jobs/{jobId}", e.guard(OpDeleteJob, phttp.JSONHandlerNoBody(e.deleteJob)))
		g.Post("/data/{jobId}", e.guard(OpUpload, phttp.JSONHandlerNoBody(e.upload)))
		g.Post("/data/{jobId}/close", e.guard(OpCloseJob, phttp.JSONHandlerNoBody(e.closeJob)))
		g.Get("/results/{jobId}", e.guard(OpResultsPage, phttp.JSONHandlerNoBody(e.resultsPage)))
		g.Get("/results/{jobId}/{bucketId}", e.guard(OpGetBucket, phttp.JSONHandlerNoBody(e.getBucket)))
	})
}

// guard counts the call and serves a queued fault instead of h when there is one
func (e *Engine) guard(op string, h phttp.Handler) phttp.Handler {
	return func(w http.ResponseWriter, r *http.Request) {
		if f, ok := e.takeFault(op); ok && f.apply(w, r) {
			return
		}
		h(w, r)
	}
}

type ack struct {
	Acknowledgement bool `json:"acknowledgement"`
}

type singleDoc struct {
	Exists   bool   `json:"exists"`
	Type     string `json:"type"`
	Document any    `json:"document,omitempty"`
}

func (e *Engine) createJob(_ *http.Request, cfg engine.JobConfig) (any, error) {
	id, ok := e.create(cfg)
	if !ok {
		return nil, perr.Conflictf("job %s already exists", id)
	}
	e.log.Info().Str("job_id", id).Msg("job created")
	return phttp.Created(map[string]string{"id": id}), nil
}

func (e *Engine) listJobs(_ *http.Request) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.JobDetails, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.jobs[id].snapshot())
	}
	return out, nil
}

func (e *Engine) getJob(r *http.Request) (any, error) {
	d, ok := e.Job(chi.URLParam(r, "jobId"))
	if !ok {
		return phttp.Status(http.StatusNotFound, singleDoc{Type: "job"}), nil
	}
	return singleDoc{Exists: true, Type: "job", Document: d}, nil
}

func (e *Engine) deleteJob(r *http.Request) (any, error) {
	id := chi.URLParam(r, "jobId")
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.jobs[id]; !ok {
		return nil, perr.NotFoundf("no job with id %s", id)
	}
	delete(e.jobs, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return ack{Acknowledgement: true}, nil
}

func (e *Engine) upload(r *http.Request) (any, error) {
	id := chi.URLParam(r, "jobId")
	rows, err := bind.ParseArray(r, e.opts.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return nil, perr.NotFoundf("no job with id %s", id)
	}
	if j.details.Status == StatusClosed {
		return nil, perr.Conflictf("job %s is closed", id)
	}
	counts := j.ingest(rows)
	return phttp.Accepted(counts), nil
}

func (e *Engine) closeJob(r *http.Request) (any, error) {
	id := chi.URLParam(r, "jobId")
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return nil, perr.NotFoundf("no job with id %s", id)
	}
	if j.details.Status != StatusClosed {
		j.details.Status = StatusClosed
		j.details.FinishedTime = ptime.Ptr(e.now())
	}
	return phttp.Accepted(ack{Acknowledgement: true}), nil
}

func (e *Engine) resultsPage(r *http.Request) (any, error) {
	id := chi.URLParam(r, "jobId")
	q := r.URL.Query()
	skip, err := intParam(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		return nil, perr.WithField(perr.InvalidArgf("skip must be a non negative integer"), "skip")
	}
	take, err := intParam(q.Get("take"), 100)
	if err != nil || take < 1 {
		return nil, perr.WithField(perr.InvalidArgf("take must be a positive integer"), "take")
	}
	expand := q.Get("expand") == "true"

	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return nil, perr.NotFoundf("no job with id %s", id)
	}
	all := j.buckets(expand)
	lo := min(skip, len(all))
	hi := min(skip+take, len(all))
	return pageBody{
		HitCount:     int64(len(all)),
		Skip:         skip,
		Take:         take,
		NextPage:     hi < len(all),
		PreviousPage: skip > 0,
		Documents:    all[lo:hi],
	}, nil
}

// pageBody mirrors engine.Page with boolean page flags on the wire
type pageBody struct {
	HitCount     int64           `json:"hitCount"`
	Skip         int             `json:"skip"`
	Take         int             `json:"take"`
	NextPage     bool            `json:"nextPage"`
	PreviousPage bool            `json:"previousPage"`
	Documents    []engine.Bucket `json:"documents"`
}

func (e *Engine) getBucket(r *http.Request) (any, error) {
	id := chi.URLParam(r, "jobId")
	bid := chi.URLParam(r, "bucketId")
	expand := r.URL.Query().Get("expand") == "true"

	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return nil, perr.NotFoundf("no job with id %s", id)
	}
	for _, b := range j.buckets(expand) {
		if b.ID == bid {
			return singleDoc{Exists: true, Type: "bucket", Document: b}, nil
		}
	}
	return phttp.Status(http.StatusNotFound, singleDoc{Type: "bucket"}), nil
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	_, body := phttp.ErrorBodyFrom(perr.Newf(perr.ErrorCodeStatus, "%s", msg), "")
	body.RequestID = pnet.RequestID(r.Context())
	phttp.JSON(w, status, body)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
