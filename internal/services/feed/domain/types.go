// Package domain holds the feed runner's data shapes and ports
package domain

import (
	"time"

	"enginefeed/internal/adapters/csvload"
	"enginefeed/internal/adapters/engine"
)

// Record re-exports the loader's row shape: a timestamp, a partition value and flat fields
type Record = csvload.Record

// Query selects the stored records fed to a job
type Query struct {
	Table string `json:"table" validate:"required,sqlident"`
	// Fields projects the payload; empty keeps every field
	Fields []string `json:"fields" validate:"dive,required"`
	// TimeField is the key the record time is sent under
	TimeField string `json:"timeField" validate:"required"`
	// PartitionField, when set, is the key the partition value is sent under
	PartitionField string `json:"partitionField"`
	BatchSize      int    `json:"batchSize" validate:"min=1,max=100000"`
}

// Row renders r as the flat document uploaded to the engine
func (q Query) Row(r Record) map[string]any {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[q.TimeField] = r.Time.UTC().Format(time.RFC3339Nano)
	if q.PartitionField != "" && r.Partition != "" {
		out[q.PartitionField] = r.Partition
	}
	return out
}

// Rows renders a batch
func (q Query) Rows(rs []Record) []map[string]any {
	out := make([]map[string]any, len(rs))
	for i, r := range rs {
		out[i] = q.Row(r)
	}
	return out
}

// Request is one feed run
type Request struct {
	Job    engine.JobConfig `json:"job"`
	Query  Query            `json:"query"`
	Expand bool             `json:"expand"`
}

// LoadRequest copies a CSV file into the record table
type LoadRequest struct {
	Path            string `json:"path" validate:"required"`
	Table           string `json:"table" validate:"required,sqlident"`
	TimeColumn      string `json:"timeColumn"`
	PartitionColumn string `json:"partitionColumn"`
	BatchSize       int    `json:"batchSize" validate:"min=1,max=100000"`
}

// Summary reports what a run did
type Summary struct {
	JobID     string        `json:"jobId"`
	Batches   int           `json:"batches"`
	Records   int           `json:"records"`
	Buckets   int           `json:"buckets"`
	Anomalous int           `json:"anomalous"`
	Stored    int           `json:"stored"`
	Elapsed   time.Duration `json:"elapsed"`
}

// StoredBucket is a bucket row as the sink keeps it
type StoredBucket struct {
	JobID        string    `db:"job_id" json:"jobId"`
	BucketID     string    `db:"bucket_id" json:"bucketId"`
	BucketTime   time.Time `db:"bucket_time" json:"bucketTime"`
	AnomalyScore float64   `db:"anomaly_score" json:"anomalyScore"`
	RecordCount  int       `db:"record_count" json:"recordCount"`
	EventCount   int64     `db:"event_count" json:"eventCount"`
	IsInterim    bool      `db:"is_interim" json:"isInterim"`
}
