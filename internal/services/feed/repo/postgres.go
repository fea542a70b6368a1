package repo

import (
	"context"
	"time"

	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/modkit/repokit"
	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/store"
	"enginefeed/internal/services/feed/domain"
)

// Schema is the results layout, applied by EnsureSchema
const Schema = `
CREATE TABLE IF NOT EXISTS feed_buckets (
	job_id                     text             NOT NULL,
	bucket_id                  text             NOT NULL,
	bucket_time                timestamptz      NOT NULL,
	anomaly_score              double precision NOT NULL,
	max_normalized_probability double precision NOT NULL DEFAULT 0,
	record_count               integer          NOT NULL DEFAULT 0,
	event_count                bigint           NOT NULL DEFAULT 0,
	is_interim                 boolean          NOT NULL DEFAULT false,
	stored_at                  timestamptz      NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, bucket_id)
);

CREATE TABLE IF NOT EXISTS feed_records (
	job_id                 text             NOT NULL,
	bucket_id              text             NOT NULL,
	ordinal                integer          NOT NULL,
	record_time            timestamptz      NOT NULL,
	probability            double precision NOT NULL,
	anomaly_score          double precision NOT NULL,
	normalized_probability double precision NOT NULL,
	function               text,
	field_name             text,
	by_field_value         text,
	over_field_value       text,
	partition_field_value  text,
	typical                double precision,
	actual                 double precision,
	PRIMARY KEY (job_id, bucket_id, ordinal),
	FOREIGN KEY (job_id, bucket_id) REFERENCES feed_buckets (job_id, bucket_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS feed_runs (
	job_id      text        PRIMARY KEY,
	batches     integer     NOT NULL,
	records     bigint      NOT NULL,
	buckets     integer     NOT NULL,
	anomalous   integer     NOT NULL,
	elapsed_ms  bigint      NOT NULL,
	finished_at timestamptz NOT NULL DEFAULT now()
);`

// EnsureSchema creates the results tables if missing
func EnsureSchema(ctx context.Context, q repokit.Queryer) error {
	_, err := q.Exec(ctx, Schema)
	return err
}

type (
	// PG is a Postgres binder for domain.ResultsRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.ResultsRepo
func NewPG() repokit.Binder[domain.ResultsRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.ResultsRepo { return &queries{q: q} }

// UpsertBuckets writes every bucket in one statement keyed by (job_id, bucket_id)
func (r *queries) UpsertBuckets(ctx context.Context, jobID string, bs []engine.Bucket) (int, error) {
	if len(bs) == 0 {
		return 0, nil
	}
	n := len(bs)
	var (
		ids    = make([]string, n)
		times  = make([]time.Time, n)
		scores = make([]float64, n)
		maxp   = make([]float64, n)
		recs   = make([]int32, n)
		events = make([]int64, n)
		interm = make([]bool, n)
	)
	for i, b := range bs {
		ids[i] = b.ID
		times[i] = b.Timestamp.UTC()
		scores[i] = b.AnomalyScore
		maxp[i] = b.MaxNormalizedProbability
		recs[i] = int32(b.RecordCount)
		events[i] = b.EventCount
		interm[i] = b.IsInterim
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO feed_buckets (
			job_id, bucket_id, bucket_time, anomaly_score,
			max_normalized_probability, record_count, event_count, is_interim
		)
		SELECT $1, u.bucket_id, u.bucket_time, u.anomaly_score, u.maxp, u.record_count, u.event_count, u.is_interim
		FROM unnest($2::text[], $3::timestamptz[], $4::float8[], $5::float8[], $6::int4[], $7::int8[], $8::bool[])
			AS u(bucket_id, bucket_time, anomaly_score, maxp, record_count, event_count, is_interim)
		ON CONFLICT (job_id, bucket_id) DO UPDATE SET
			bucket_time = EXCLUDED.bucket_time,
			anomaly_score = EXCLUDED.anomaly_score,
			max_normalized_probability = EXCLUDED.max_normalized_probability,
			record_count = EXCLUDED.record_count,
			event_count = EXCLUDED.event_count,
			is_interim = EXCLUDED.is_interim,
			stored_at = now()
	`, jobID, ids, times, scores, maxp, recs, events, interm)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// UpsertRecords writes the anomaly records of expanded buckets keyed by (job_id, bucket_id, ordinal)
func (r *queries) UpsertRecords(ctx context.Context, jobID string, bs []engine.Bucket) (int, error) {
	var (
		bucketIDs []string
		ordinals  []int32
		times     []time.Time
		probs     []float64
		scores    []float64
		norm      []float64
		funcs     []*string
		fields    []*string
		byVals    []*string
		overVals  []*string
		partVals  []*string
		typical   []*float64
		actual    []*float64
	)
	for _, b := range bs {
		for i, rec := range b.Records {
			bucketIDs = append(bucketIDs, b.ID)
			ordinals = append(ordinals, int32(i))
			times = append(times, rec.Timestamp.UTC())
			probs = append(probs, rec.Probability)
			scores = append(scores, rec.AnomalyScore)
			norm = append(norm, rec.NormalizedProbability)
			funcs = append(funcs, optional(rec.Function))
			fields = append(fields, optional(rec.FieldName))
			byVals = append(byVals, optional(rec.ByFieldValue))
			overVals = append(overVals, optional(rec.OverFieldValue))
			partVals = append(partVals, optional(rec.PartitionFieldValue))
			typical = append(typical, rec.Typical)
			actual = append(actual, rec.Actual)
		}
	}
	if len(bucketIDs) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO feed_records (
			job_id, bucket_id, ordinal, record_time, probability, anomaly_score, normalized_probability,
			function, field_name, by_field_value, over_field_value, partition_field_value, typical, actual
		)
		SELECT $1, u.*
		FROM unnest(
			$2::text[], $3::int4[], $4::timestamptz[], $5::float8[], $6::float8[], $7::float8[],
			$8::text[], $9::text[], $10::text[], $11::text[], $12::text[], $13::float8[], $14::float8[]
		) AS u
		ON CONFLICT (job_id, bucket_id, ordinal) DO UPDATE SET
			record_time = EXCLUDED.record_time,
			probability = EXCLUDED.probability,
			anomaly_score = EXCLUDED.anomaly_score,
			normalized_probability = EXCLUDED.normalized_probability,
			function = EXCLUDED.function,
			field_name = EXCLUDED.field_name,
			by_field_value = EXCLUDED.by_field_value,
			over_field_value = EXCLUDED.over_field_value,
			partition_field_value = EXCLUDED.partition_field_value,
			typical = EXCLUDED.typical,
			actual = EXCLUDED.actual
	`, jobID, bucketIDs, ordinals, times, probs, scores, norm, funcs, fields, byVals, overVals, partVals, typical, actual)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// FinishRun records the run summary; a rerun of the same job overwrites it
func (r *queries) FinishRun(ctx context.Context, sum domain.Summary) error {
	return store.ExecOne(ctx, r.q, `
		INSERT INTO feed_runs (job_id, batches, records, buckets, anomalous, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			batches = EXCLUDED.batches,
			records = EXCLUDED.records,
			buckets = EXCLUDED.buckets,
			anomalous = EXCLUDED.anomalous,
			elapsed_ms = EXCLUDED.elapsed_ms,
			finished_at = now()
	`, sum.JobID, sum.Batches, sum.Records, sum.Buckets, sum.Anomalous, sum.Elapsed.Milliseconds())
}

// Buckets reads a job's stored buckets in time order
func (r *queries) Buckets(ctx context.Context, jobID string) ([]domain.StoredBucket, error) {
	bs, err := store.StructsByName[domain.StoredBucket](ctx, r.q, `
		SELECT job_id, bucket_id, bucket_time, anomaly_score, record_count, event_count, is_interim
		FROM feed_buckets
		WHERE job_id = $1
		ORDER BY bucket_time ASC, bucket_id ASC
	`, jobID)
	return bs, noSchema(err)
}

// CountBuckets returns how many buckets are stored for a job
func (r *queries) CountBuckets(ctx context.Context, jobID string) (int64, error) {
	n, err := store.Scalar[int64](ctx, r.q, `SELECT count(*) FROM feed_buckets WHERE job_id = $1`, jobID)
	return n, noSchema(err)
}

// noSchema reports reads before EnsureSchema as not found
func noSchema(err error) error {
	if perr.IsUndefinedTable(err) {
		return perr.Wrap(err, perr.ErrorCodeNotFound, "results schema not created")
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
