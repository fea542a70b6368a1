package module

import (
	"time"

	"enginefeed/internal/platform/config"
	"enginefeed/internal/services/feed/domain"
)

// Options for the feed module
type Options struct {
	Table          string
	Fields         []string
	TimeField      string
	PartitionField string
	BatchSize      int
	Expand         bool

	UploadRetries int
	RetryBase     time.Duration
	RetryMax      time.Duration
	CloseTimeout  time.Duration
	AnomalyScore  float64

	// Sink stores results in postgres when a pool is wired
	Sink             bool
	StatementTimeout time.Duration
	AsyncCommit      bool
}

// FromConfig fills options from environment
// FEED_TABLE (default "records") is the clickhouse table records are read from and loaded into
// FEED_FIELDS (default all) is a comma separated projection of record fields
// FEED_TIME_FIELD (default the job's time field) is the key record times are sent under
// FEED_BATCH_SIZE (default 500) is the number of records per upload
// FEED_UPLOAD_RETRIES (default 3) is how many times a failed batch is re-sent
// FEED_RETRY_BASE and FEED_RETRY_MAX (default 250ms, 10s) bound the backoff between re-sends
// FEED_SINK (default true) stores results when postgres is configured
func FromConfig(cfg config.Conf) Options {
	f := cfg.Prefix("FEED_")
	return Options{
		Table:            f.MayString("TABLE", "records"),
		Fields:           f.MayCSV("FIELDS", nil),
		TimeField:        f.MayString("TIME_FIELD", ""),
		PartitionField:   f.MayString("PARTITION_FIELD", ""),
		BatchSize:        f.MayInt("BATCH_SIZE", 500),
		Expand:           f.MayBool("EXPAND", true),
		UploadRetries:    f.MayInt("UPLOAD_RETRIES", 3),
		RetryBase:        f.MayDuration("RETRY_BASE", 250*time.Millisecond),
		RetryMax:         f.MayDuration("RETRY_MAX", 10*time.Second),
		CloseTimeout:     f.MayDuration("CLOSE_TIMEOUT", 10*time.Second),
		AnomalyScore:     f.MayFloat64("ANOMALY_SCORE", 50),
		Sink:             f.MayBool("SINK", true),
		StatementTimeout: f.MayDuration("STATEMENT_TIMEOUT", 30*time.Second),
		AsyncCommit:      f.MayBool("ASYNC_COMMIT", false),
	}
}

// merge lays non-zero overrides over o. Booleans cannot be unset by an override
func (o Options) merge(ov Options) Options {
	if ov.Table != "" {
		o.Table = ov.Table
	}
	if len(ov.Fields) > 0 {
		o.Fields = ov.Fields
	}
	if ov.TimeField != "" {
		o.TimeField = ov.TimeField
	}
	if ov.PartitionField != "" {
		o.PartitionField = ov.PartitionField
	}
	if ov.BatchSize != 0 {
		o.BatchSize = ov.BatchSize
	}
	if ov.UploadRetries != 0 {
		o.UploadRetries = ov.UploadRetries
	}
	if ov.RetryBase != 0 {
		o.RetryBase = ov.RetryBase
	}
	if ov.RetryMax != 0 {
		o.RetryMax = ov.RetryMax
	}
	if ov.CloseTimeout != 0 {
		o.CloseTimeout = ov.CloseTimeout
	}
	if ov.AnomalyScore != 0 {
		o.AnomalyScore = ov.AnomalyScore
	}
	if ov.StatementTimeout != 0 {
		o.StatementTimeout = ov.StatementTimeout
	}
	o.Expand = o.Expand || ov.Expand
	o.Sink = o.Sink || ov.Sink
	o.AsyncCommit = o.AsyncCommit || ov.AsyncCommit
	return o
}

// Query is the record selection these options describe
func (o Options) Query() domain.Query {
	return domain.Query{
		Table:          o.Table,
		Fields:         o.Fields,
		TimeField:      o.TimeField,
		PartitionField: o.PartitionField,
		BatchSize:      o.BatchSize,
	}
}
