// Package service runs feeds: stored records into an engine job, results back out
package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"time"

	"enginefeed/internal/adapters/csvload"
	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/modkit/repokit"
	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/logger"
	"enginefeed/internal/platform/validate"
	"enginefeed/internal/services/feed/domain"
)

// Config tunes a runner
type Config struct {
	// UploadRetries is how many times one batch is re-sent after a transient failure
	UploadRetries int
	// RetryBase is the first backoff; it doubles per attempt up to RetryMax
	RetryBase time.Duration
	RetryMax  time.Duration
	// CloseTimeout bounds the best-effort close of a failed run's job
	CloseTimeout time.Duration
	// AnomalyScore is the bucket score counted as anomalous in a Summary
	AnomalyScore float64
}

func (c Config) withDefaults() Config {
	if c.UploadRetries < 0 {
		c.UploadRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 250 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 10 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.AnomalyScore <= 0 {
		c.AnomalyScore = 50
	}
	return c
}

// Service implements domain.RunnerPort
type Service struct {
	Acquire domain.AcquireFunc
	Source  domain.Source
	Loader  domain.Loader

	// DB and Binder are optional; without them results are not stored
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.ResultsRepo]

	Cfg Config
}

var _ domain.RunnerPort = (*Service)(nil)

// New constructs the feed service
func New(acquire domain.AcquireFunc, src domain.Source, loader domain.Loader,
	db repokit.TxRunner, binder repokit.Binder[domain.ResultsRepo], cfg Config,
) *Service {
	if acquire == nil {
		panic("feed.Service requires an engine")
	}
	if db != nil && binder == nil {
		panic("feed.Service requires a results binder when a database is given")
	}
	return &Service{
		Acquire: acquire,
		Source:  src,
		Loader:  loader,
		DB:      db,
		Binder:  binder,
		Cfg:     cfg.withDefaults(),
	}
}

// Run creates a job, uploads every batch the source yields, closes the job,
// then fetches and stores its results. Any failure stops the run; a job
// created before the failure is still closed
func (s *Service) Run(ctx context.Context, req domain.Request) (sum domain.Summary, err error) {
	start := time.Now()
	if req.Query.TimeField == "" {
		req.Query.TimeField = req.Job.DataDescription.TimeField
	}
	if err := validate.Struct(req); err != nil {
		return sum, err
	}
	if s.Source == nil {
		return sum, perr.Unavailablef("feed: no record source configured")
	}

	eng, release, err := s.Acquire(ctx)
	if err != nil {
		return sum, err
	}
	defer release()

	jobID, err := eng.CreateJob(ctx, req.Job)
	if err != nil {
		return sum, err
	}
	sum.JobID = jobID
	ctx = logger.WithJob(ctx, jobID)
	log := logger.C(ctx)
	log.Info().Str("table", req.Query.Table).Int("batch_size", req.Query.BatchSize).Msg("feed: job created")

	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			s.closeQuietly(ctx, eng, jobID)
		}
		err = perr.WithOp(perr.Wrapf(err, perr.CodeOf(err), "feed job %s", jobID), "feed.run")
	}()

	err = s.Source.Scan(ctx, req.Query, func(batch []domain.Record) error {
		body, err := json.Marshal(req.Query.Rows(batch))
		if err != nil {
			return perr.Wrap(err, perr.ErrorCodeJSON, "encode batch")
		}
		if err := s.upload(ctx, eng, jobID, body, sum.Batches); err != nil {
			return err
		}
		sum.Batches++
		sum.Records += len(batch)
		log.Debug().Int("batch", sum.Batches).Int("records", len(batch)).Msg("feed: batch accepted")
		return nil
	})
	if err != nil {
		return sum, err
	}

	closed = true
	if _, err = eng.CloseJob(ctx, jobID); err != nil {
		return sum, err
	}

	buckets, err := eng.GetResults(ctx, jobID, req.Expand)
	if err != nil {
		return sum, err
	}
	sum.Buckets = len(buckets)
	for _, b := range buckets {
		if b.AnomalyScore >= s.Cfg.AnomalyScore {
			sum.Anomalous++
		}
	}
	sum.Elapsed = time.Since(start)

	if s.DB != nil {
		if sum.Stored, err = s.store(ctx, sum, buckets); err != nil {
			return sum, err
		}
	}

	log.Info().
		Int("batches", sum.Batches).
		Int("records", sum.Records).
		Int("buckets", sum.Buckets).
		Int("anomalous", sum.Anomalous).
		Int("stored", sum.Stored).
		Dur("elapsed", sum.Elapsed).
		Msg("feed: run done")
	return sum, nil
}

// upload sends the same encoded batch until it is accepted, a non-transient
// error comes back, or the retries run out
func (s *Service) upload(ctx context.Context, eng domain.Engine, jobID string, body []byte, batch int) error {
	for attempt := 0; ; attempt++ {
		_, err := eng.Upload(ctx, jobID, body)
		if err == nil {
			return nil
		}
		if !engine.IsTransient(err) || attempt >= s.Cfg.UploadRetries {
			return err
		}
		d := backoff(s.Cfg.RetryBase, s.Cfg.RetryMax, attempt)
		logger.C(ctx).Warn().Err(err).
			Int("batch", batch).
			Int("attempt", attempt+1).
			Dur("backoff", d).
			Msg("feed: upload failed, resending batch")
		if serr := sleepCtx(ctx, d); serr != nil {
			return perr.Wrap(serr, perr.ErrorCodeUnavailable, "upload retry canceled")
		}
	}
}

// closeQuietly closes a job after a failed run, on a context that outlives ctx's cancellation
func (s *Service) closeQuietly(ctx context.Context, eng domain.Engine, jobID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Cfg.CloseTimeout)
	defer cancel()
	if status, err := eng.CloseJob(cctx, jobID); err != nil {
		logger.C(ctx).Warn().Err(err).Int("status", status).Msg("feed: closing failed job")
	}
}

// store writes buckets, records and the run row in one transaction
func (s *Service) store(ctx context.Context, sum domain.Summary, buckets []engine.Bucket) (int, error) {
	var stored int
	err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		r := repokit.MustBind(s.Binder, q)
		n, err := r.UpsertBuckets(ctx, sum.JobID, buckets)
		if err != nil {
			return err
		}
		if _, err := r.UpsertRecords(ctx, sum.JobID, buckets); err != nil {
			return err
		}
		stored = n
		sum.Stored = n
		return r.FinishRun(ctx, sum)
	})
	return stored, err
}

// Results fetches every bucket of an existing job
func (s *Service) Results(ctx context.Context, jobID string, expand bool) ([]engine.Bucket, error) {
	eng, release, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return eng.GetResults(ctx, jobID, expand)
}

// Jobs lists the engine's jobs
func (s *Service) Jobs(ctx context.Context) ([]engine.JobDetails, error) {
	eng, release, err := s.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return eng.ListJobs(ctx)
}

// Stored reads back the buckets the sink kept for a job
func (s *Service) Stored(ctx context.Context, jobID string) ([]domain.StoredBucket, error) {
	if s.DB == nil {
		return nil, perr.New(perr.ErrorCodeUnavailable, "feed: no results store configured")
	}
	if jobID == "" {
		return nil, perr.New(perr.ErrorCodeInvalidArgument, "feed: job id is required")
	}
	var out []domain.StoredBucket
	err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		r := repokit.MustBind(s.Binder, q)
		n, err := r.CountBuckets(ctx, jobID)
		if err != nil {
			return err
		}
		if n == 0 {
			return perr.Newf(perr.ErrorCodeNotFound, "feed: no stored buckets for job %s", jobID)
		}
		out, err = r.Buckets(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Load copies a CSV file into the record table batch by batch
func (s *Service) Load(ctx context.Context, req domain.LoadRequest) (int, error) {
	if err := validate.Struct(req); err != nil {
		return 0, err
	}
	if s.Loader == nil {
		return 0, perr.Unavailablef("feed: no record loader configured")
	}
	if err := s.Loader.EnsureTable(ctx, req.Table); err != nil {
		return 0, err
	}

	rd, err := csvload.Open(req.Path, csvload.Options{
		TimeColumn:      req.TimeColumn,
		PartitionColumn: req.PartitionColumn,
		BatchSize:       req.BatchSize,
	})
	if err != nil {
		return 0, err
	}
	defer rd.Close()

	total := 0
	for {
		batch, err := rd.NextBatch()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		n, err := s.Loader.Load(ctx, req.Table, batch)
		total += n
		if err != nil {
			return total, err
		}
	}
	logger.C(ctx).Info().Str("table", req.Table).Int("rows", total).Str("path", req.Path).Msg("feed: csv loaded")
	return total, nil
}

// backoff doubles base per attempt, capped, with jitter in [d/2, d)
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := ceiling
	if attempt < 32 {
		if s := base << attempt; s > 0 && s>>attempt == base {
			d = min(s, ceiling)
		}
	}
	if d < 2 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
