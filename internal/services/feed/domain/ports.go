package domain

import (
	"context"

	"enginefeed/internal/adapters/engine"
)

// RunnerPort is what the module exposes to binaries
type RunnerPort interface {
	// Run feeds the query's records into a new job and collects its results
	Run(ctx context.Context, req Request) (Summary, error)
	// Load copies a CSV file into the record table
	Load(ctx context.Context, req LoadRequest) (int, error)
	// Results fetches every bucket of an existing job
	Results(ctx context.Context, jobID string, expand bool) ([]engine.Bucket, error)
	// Jobs lists the engine's jobs
	Jobs(ctx context.Context) ([]engine.JobDetails, error)
	// Stored reads back the buckets the sink kept for a job
	Stored(ctx context.Context, jobID string) ([]StoredBucket, error)
}

// Engine is the part of the engine client a run drives
type Engine interface {
	CreateJob(ctx context.Context, cfg engine.JobConfig) (engine.JobID, error)
	Upload(ctx context.Context, jobID engine.JobID, batch any) (int, error)
	CloseJob(ctx context.Context, jobID engine.JobID) (int, error)
	GetResults(ctx context.Context, jobID engine.JobID, expand bool) ([]engine.Bucket, error)
	ListJobs(ctx context.Context) ([]engine.JobDetails, error)
}

// AcquireFunc hands out an engine for one run; release must be called once done
type AcquireFunc func(ctx context.Context) (eng Engine, release func(), err error)

// Source streams stored records in time order, batch by batch
type Source interface {
	Scan(ctx context.Context, q Query, fn func([]Record) error) error
}

// Loader creates the record table and fills it
type Loader interface {
	EnsureTable(ctx context.Context, table string) error
	Load(ctx context.Context, table string, recs []Record) (int, error)
}

// ResultsRepo persists job results; bound to one transaction
type ResultsRepo interface {
	UpsertBuckets(ctx context.Context, jobID string, bs []engine.Bucket) (int, error)
	UpsertRecords(ctx context.Context, jobID string, bs []engine.Bucket) (int, error)
	FinishRun(ctx context.Context, sum Summary) error
	Buckets(ctx context.Context, jobID string) ([]StoredBucket, error)
	CountBuckets(ctx context.Context, jobID string) (int64, error)
}

// Adapters overrides what the module would build from deps
type Adapters struct {
	Acquire AcquireFunc
	Source  Source
	Loader  Loader
}
