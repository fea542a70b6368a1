package engine

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	perr "enginefeed/internal/platform/errors"
)

// JobID is the opaque server assigned job identifier
type JobID = string

// JobConfig is the creation payload for a job
type JobConfig struct {
	ID              string          `json:"id,omitempty" yaml:"id,omitempty"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	AnalysisConfig  AnalysisConfig  `json:"analysisConfig" yaml:"analysisConfig" validate:"required"`
	DataDescription DataDescription `json:"dataDescription" yaml:"dataDescription" validate:"required"`
}

// AnalysisConfig describes bucketing and the detectors to run
type AnalysisConfig struct {
	// BucketSpan in seconds
	BucketSpan   int64      `json:"bucketSpan" yaml:"bucketSpan" validate:"gt=0"`
	Detectors    []Detector `json:"detectors" yaml:"detectors" validate:"min=1,dive"`
	Influencers  []string   `json:"influencers,omitempty" yaml:"influencers,omitempty"`
	SummaryCount string     `json:"summaryCountFieldName,omitempty" yaml:"summaryCountFieldName,omitempty"`
}

// Detector names an analysis function and the fields it applies to
type Detector struct {
	Function           string `json:"function" yaml:"function" validate:"required"`
	FieldName          string `json:"fieldName,omitempty" yaml:"fieldName,omitempty"`
	ByFieldName        string `json:"byFieldName,omitempty" yaml:"byFieldName,omitempty"`
	OverFieldName      string `json:"overFieldName,omitempty" yaml:"overFieldName,omitempty"`
	PartitionFieldName string `json:"partitionFieldName,omitempty" yaml:"partitionFieldName,omitempty"`
}

// DataDescription tells the engine how to read uploaded batches
type DataDescription struct {
	Format     string `json:"format" yaml:"format" validate:"required"`
	TimeField  string `json:"timeField" yaml:"timeField" validate:"required"`
	TimeFormat string `json:"timeFormat,omitempty" yaml:"timeFormat,omitempty"`
}

// JobDetails is a partial job document as listed by the engine
type JobDetails struct {
	ID             string          `json:"id"`
	Description    string          `json:"description,omitempty"`
	Status         string          `json:"status,omitempty"`
	CreateTime     *time.Time      `json:"createTime,omitempty"`
	FinishedTime   *time.Time      `json:"finishedTime,omitempty"`
	LastDataTime   *time.Time      `json:"lastDataTime,omitempty"`
	AnalysisConfig *AnalysisConfig `json:"analysisConfig,omitempty"`
	Counts         *DataCounts     `json:"counts,omitempty"`
}

// UnmarshalJSON reads the job's times in any form the engine writes them
func (d *JobDetails) UnmarshalJSON(b []byte) error {
	type plain JobDetails
	var w struct {
		*plain
		CreateTime   *Stamp `json:"createTime"`
		FinishedTime *Stamp `json:"finishedTime"`
		LastDataTime *Stamp `json:"lastDataTime"`
	}
	w.plain = (*plain)(d)
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	d.CreateTime = w.CreateTime.ptr()
	d.FinishedTime = w.FinishedTime.ptr()
	d.LastDataTime = w.LastDataTime.ptr()
	return nil
}

// DataCounts is the ingestion tally the engine keeps per job
type DataCounts struct {
	BucketCount          int64 `json:"bucketCount"`
	ProcessedRecordCount int64 `json:"processedRecordCount"`
	InputRecordCount     int64 `json:"inputRecordCount"`
	InvalidDateCount     int64 `json:"invalidDateCount"`
	OutOfOrderTimeStamps int64 `json:"outOfOrderTimeStampCount"`
}

// Bucket is one time span of processed results for a job
type Bucket struct {
	ID                       string          `json:"id"`
	Timestamp                time.Time       `json:"timestamp"`
	AnomalyScore             float64         `json:"anomalyScore"`
	RawAnomalyScore          float64         `json:"rawAnomalyScore,omitempty"`
	MaxNormalizedProbability float64         `json:"maxNormalizedProbability,omitempty"`
	RecordCount              int             `json:"recordCount"`
	EventCount               int64           `json:"eventCount"`
	IsInterim                bool            `json:"isInterim,omitempty"`
	Records                  []AnomalyRecord `json:"records,omitempty"`
}

// UnmarshalJSON reads the bucket time in any form the engine writes it
func (bk *Bucket) UnmarshalJSON(b []byte) error {
	type plain Bucket
	var w struct {
		*plain
		Timestamp Stamp `json:"timestamp"`
	}
	w.plain = (*plain)(bk)
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	bk.Timestamp = w.Timestamp.Time()
	return nil
}

// AnomalyRecord is a single anomaly detail of a bucket, present only on expanded results
type AnomalyRecord struct {
	ID                    string    `json:"id,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
	Probability           float64   `json:"probability"`
	AnomalyScore          float64   `json:"anomalyScore"`
	NormalizedProbability float64   `json:"normalizedProbability"`
	Function              string    `json:"function,omitempty"`
	FieldName             string    `json:"fieldName,omitempty"`
	ByFieldName           string    `json:"byFieldName,omitempty"`
	ByFieldValue          string    `json:"byFieldValue,omitempty"`
	OverFieldName         string    `json:"overFieldName,omitempty"`
	OverFieldValue        string    `json:"overFieldValue,omitempty"`
	PartitionFieldName    string    `json:"partitionFieldName,omitempty"`
	PartitionFieldValue   string    `json:"partitionFieldValue,omitempty"`
	Typical               *float64  `json:"typical,omitempty"`
	Actual                *float64  `json:"actual,omitempty"`
	IsInterim             bool      `json:"isInterim,omitempty"`
}

// UnmarshalJSON reads the record time in any form the engine writes it
func (r *AnomalyRecord) UnmarshalJSON(b []byte) error {
	type plain AnomalyRecord
	var w struct {
		*plain
		Timestamp Stamp `json:"timestamp"`
	}
	w.plain = (*plain)(r)
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	r.Timestamp = w.Timestamp.Time()
	return nil
}

// Stamp decodes an engine timestamp. Engines write epoch milliseconds,
// RFC3339, or ISO 8601 with a numeric offset such as +0000
type Stamp time.Time

var stampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

// UnmarshalJSON accepts a millisecond number, a timestamp string, or null
func (s *Stamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = Stamp{}
		return nil
	}
	if b[0] != '"' {
		ms, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(string(b), 64)
			if ferr != nil {
				return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "timestamp %s", b)
			}
			ms = int64(f)
		}
		*s = Stamp(time.UnixMilli(ms).UTC())
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	if str == "" {
		*s = Stamp{}
		return nil
	}
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			*s = Stamp(t)
			return nil
		}
	}
	return perr.Newf(perr.ErrorCodeInvalidArgument, "timestamp %q: unknown layout", str)
}

// Time returns the decoded instant
func (s Stamp) Time() time.Time { return time.Time(s) }

func (s *Stamp) ptr() *time.Time {
	if s == nil {
		return nil
	}
	t := time.Time(*s)
	return &t
}

// Page is one offset addressed slice of a job's bucket sequence
type Page struct {
	HitCount     int64    `json:"hitCount"`
	Skip         int      `json:"skip"`
	Take         int      `json:"take"`
	NextPage     PageLink `json:"nextPage"`
	PreviousPage PageLink `json:"previousPage"`
	Documents    []Bucket `json:"documents"`
}

// PageLink decodes the engine's page pointers.
// Older engines send a URL string (or null), newer ones a boolean; either way
// the client only needs to know whether another page exists
type PageLink struct {
	Present bool
	URL     string
}

// UnmarshalJSON accepts true/false, null, or a URL string
func (l *PageLink) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*l = PageLink{}
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = PageLink{Present: s != "", URL: s}
		return nil
	default:
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*l = PageLink{Present: v}
		return nil
	}
}

// MarshalJSON writes the boolean form
func (l PageLink) MarshalJSON() ([]byte, error) { return json.Marshal(l.Present) }

// singleDocument is the engine's envelope for one looked up document
type singleDocument struct {
	Exists   *bool           `json:"exists,omitempty"`
	Type     string          `json:"type,omitempty"`
	Document json.RawMessage `json:"document"`
}

// present reports whether the envelope carries a real document
func (d singleDocument) present() bool {
	if d.Exists != nil && !*d.Exists {
		return false
	}
	doc := bytes.TrimSpace(d.Document)
	return len(doc) > 0 && !bytes.Equal(doc, []byte("null"))
}

// createdJob is the body returned on job creation
type createdJob struct {
	ID string `json:"id"`
}

// APIError is the engine's error body, decoded best effort
type APIError struct {
	ErrorCode int64  `json:"errorCode"`
	Message   string `json:"message"`
	Cause     string `json:"cause,omitempty"`
}
