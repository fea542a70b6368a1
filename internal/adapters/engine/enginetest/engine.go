// Package enginetest is an in memory stand in for the anomaly detection engine API.
// It serves the same routes and bodies as the real engine, keeps jobs in memory,
// bucketizes uploaded records with a simple count detector, and can be told to
// fail specific operations
package enginetest

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/platform/logger"
	ptime "enginefeed/internal/platform/time"

	"github.com/google/uuid"
)

// Job states as reported in job details
const (
	StatusRunning = "RUNNING"
	StatusClosed  = "CLOSED"
)

// Engine is the in memory engine state; the zero value is not usable, call New
type Engine struct {
	mu     sync.Mutex
	jobs   map[string]*job
	order  []string
	faults map[string][]Fault
	calls  map[string]int

	opts Options
	log  logger.Logger
	now  func() time.Time
	id   func() string
}

type job struct {
	cfg     engine.JobConfig
	details engine.JobDetails

	// event counts per bucket start (unix seconds)
	counts map[int64]int64

	// seeded buckets replace computed ones
	seeded []engine.Bucket
}

// New returns an empty engine
func New(o Options) *Engine {
	o = o.withDefaults()
	return &Engine{
		jobs:   map[string]*job{},
		faults: map[string][]Fault{},
		calls:  map[string]int{},
		opts:   o,
		log:    *logger.Named("engine-stub"),
		now:    func() time.Time { return time.Now().UTC() },
		id:     uuid.NewString,
	}
}

// Seed registers a closed job whose results are exactly buckets, in order
func (e *Engine) Seed(jobID string, buckets []engine.Bucket) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	j := &job{
		details: engine.JobDetails{
			ID:           jobID,
			Status:       StatusClosed,
			CreateTime:   ptime.Ptr(now),
			FinishedTime: ptime.Ptr(now),
			Counts:       &engine.DataCounts{BucketCount: int64(len(buckets))},
		},
		counts: map[int64]int64{},
		seeded: slices.Clone(buckets),
	}
	if j.seeded == nil {
		j.seeded = []engine.Bucket{}
	}
	if _, ok := e.jobs[jobID]; !ok {
		e.order = append(e.order, jobID)
	}
	e.jobs[jobID] = j
}

// Calls returns how many requests reached op, including failed ones
func (e *Engine) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// Job returns a copy of a job's details
func (e *Engine) Job(jobID string) (engine.JobDetails, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[jobID]
	if !ok {
		return engine.JobDetails{}, false
	}
	return j.snapshot(), true
}

func (j *job) snapshot() engine.JobDetails {
	d := j.details
	if d.Counts != nil {
		c := *d.Counts
		c.BucketCount = int64(len(j.buckets(false)))
		d.Counts = &c
	}
	return d
}

// create registers a new job; a caller chosen id that already exists reports false
func (e *Engine) create(cfg engine.JobConfig) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := cfg.ID
	if id == "" {
		id = e.id()
	}
	if _, ok := e.jobs[id]; ok {
		return id, false
	}
	ac := cfg.AnalysisConfig
	e.jobs[id] = &job{
		cfg: cfg,
		details: engine.JobDetails{
			ID:             id,
			Description:    cfg.Description,
			Status:         StatusRunning,
			CreateTime:     ptime.Ptr(e.now()),
			AnalysisConfig: &ac,
			Counts:         &engine.DataCounts{},
		},
		counts: map[int64]int64{},
	}
	e.order = append(e.order, id)
	return id, true
}

// ingest folds one batch into the job's bucket counts
func (j *job) ingest(rows []map[string]any) engine.DataCounts {
	span := j.cfg.AnalysisConfig.BucketSpan
	if span <= 0 {
		span = 1
	}
	tf := j.cfg.DataDescription.TimeField
	var batch engine.DataCounts
	for _, row := range rows {
		batch.InputRecordCount++
		ts, ok := rowTime(row[tf])
		if !ok {
			batch.InvalidDateCount++
			continue
		}
		start := ts.Unix() - ts.Unix()%span
		j.counts[start]++
		batch.ProcessedRecordCount++
		if j.details.LastDataTime == nil || ts.After(*j.details.LastDataTime) {
			j.details.LastDataTime = ptime.Ptr(ts)
		} else if ts.Before(*j.details.LastDataTime) {
			batch.OutOfOrderTimeStamps++
		}
	}
	c := j.details.Counts
	c.InputRecordCount += batch.InputRecordCount
	c.ProcessedRecordCount += batch.ProcessedRecordCount
	c.InvalidDateCount += batch.InvalidDateCount
	c.OutOfOrderTimeStamps += batch.OutOfOrderTimeStamps
	return batch
}

func rowTime(v any) (time.Time, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = t
	case float64:
		s = strconv.FormatInt(int64(t), 10)
	default:
		return time.Time{}, false
	}
	ts, err := ptime.Parse(s)
	return ts, err == nil
}

// buckets returns the job's buckets in ascending time order.
// Scores come from a running mean/stddev of earlier bucket counts
func (j *job) buckets(expand bool) []engine.Bucket {
	if j.seeded != nil {
		out := slices.Clone(j.seeded)
		if !expand {
			for i := range out {
				out[i].Records = nil
			}
		}
		return out
	}

	starts := make([]int64, 0, len(j.counts))
	for s := range j.counts {
		starts = append(starts, s)
	}
	slices.Sort(starts)

	fn := "count"
	if d := j.cfg.AnalysisConfig.Detectors; len(d) > 0 {
		fn = d[0].Function
	}
	interim := j.details.Status != StatusClosed

	out := make([]engine.Bucket, 0, len(starts))
	var n, mean, m2 float64
	for i, s := range starts {
		c := float64(j.counts[s])
		var z float64
		if n >= 2 {
			sd := math.Sqrt(m2 / (n - 1))
			z = (c - mean) / math.Max(sd, 1)
		}
		score := math.Min(math.Max(z*25, 0), 100)
		prob := math.Min(math.Exp(-z*z/2), 1)
		ts := time.Unix(s, 0).UTC()
		b := engine.Bucket{
			ID:                       strconv.FormatInt(s, 10),
			Timestamp:                ts,
			AnomalyScore:             round2(score),
			RawAnomalyScore:          round2(z),
			MaxNormalizedProbability: round2(score),
			EventCount:               int64(c),
			IsInterim:                interim && i == len(starts)-1,
		}
		if score > 0 {
			b.RecordCount = 1
			if expand {
				typ, act := round2(mean), c
				b.Records = []engine.AnomalyRecord{{
					ID:                    b.ID + "-0",
					Timestamp:             ts,
					Probability:           prob,
					AnomalyScore:          b.AnomalyScore,
					NormalizedProbability: b.AnomalyScore,
					Function:              fn,
					Typical:               &typ,
					Actual:                &act,
					IsInterim:             b.IsInterim,
				}}
			}
		}
		out = append(out, b)

		// Welford update after scoring so a bucket is judged against its past only
		n++
		d := c - mean
		mean += d / n
		m2 += d * (c - mean)
	}
	return out
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
