package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/validate"
)

// CreateJob validates cfg and creates a job, returning the server assigned id.
// A nil error always comes with a non-empty id
func (c *Client) CreateJob(ctx context.Context, cfg JobConfig) (JobID, error) {
	if err := validate.Struct(cfg); err != nil {
		return "", perr.WithOp(err, "create_job")
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", perr.WithOp(perr.Wrap(err, perr.ErrorCodeJSON, "encode job config"), "create_job")
	}
	return c.CreateJobRaw(ctx, b)
}

// CreateJobRaw creates a job from an already serialized JSON configuration
func (c *Client) CreateJobRaw(ctx context.Context, cfg []byte) (JobID, error) {
	const op = "create_job"
	if len(bytes.TrimSpace(cfg)) == 0 {
		return "", perr.WithOp(perr.InvalidArgf("engine %s: empty job config", op), op)
	}
	_, b, err := c.do(ctx, call{op: op, method: http.MethodPost, path: "/jobs", body: cfg, want: http.StatusCreated})
	if err != nil {
		return "", err
	}
	var out createdJob
	if err := json.Unmarshal(b, &out); err != nil {
		return "", perr.WithOp(perr.Wrap(err, perr.ErrorCodeJSON, "decode created job"), op)
	}
	if out.ID == "" {
		return "", perr.WithOp(perr.JSONErrf("engine %s: created response carries no id", op), op)
	}
	c.log.Info().Str("job_id", out.ID).Msg("engine job created")
	return out.ID, nil
}

// Upload sends one batch to the job. The batch may be raw JSON ([]byte,
// json.RawMessage, string), an io.Reader, or any value encoded as JSON.
// The status is returned whenever a response arrived, and is 0 otherwise
func (c *Client) Upload(ctx context.Context, jobID JobID, batch any) (int, error) {
	const op = "upload"
	if err := requireJob(op, jobID); err != nil {
		return 0, err
	}
	body, err := encodeBatch(batch)
	if err != nil {
		return 0, perr.WithOp(err, op)
	}
	status, _, err := c.do(ctx, call{
		op:     op,
		jobID:  jobID,
		method: http.MethodPost,
		path:   jobPath("/data", jobID),
		body:   body,
		want:   http.StatusAccepted,
	})
	return status, err
}

// CloseJob signals end of data so the engine finalizes the job
func (c *Client) CloseJob(ctx context.Context, jobID JobID) (int, error) {
	const op = "close_job"
	if err := requireJob(op, jobID); err != nil {
		return 0, err
	}
	status, _, err := c.do(ctx, call{
		op:     op,
		jobID:  jobID,
		method: http.MethodPost,
		path:   jobPath("/data", jobID, "close"),
		want:   http.StatusAccepted,
	})
	if err == nil {
		c.log.Info().Str("job_id", jobID).Msg("engine job closed")
	}
	return status, err
}

// GetBucket fetches one bucket. A missing bucket is reported as a not found error
func (c *Client) GetBucket(ctx context.Context, jobID JobID, bucketID string, expand bool) (Bucket, error) {
	const op = "get_bucket"
	if err := requireJob(op, jobID); err != nil {
		return Bucket{}, err
	}
	if bucketID == "" {
		return Bucket{}, perr.WithOp(perr.InvalidArgf("engine %s: bucket id is required", op), op)
	}
	_, b, err := c.do(ctx, call{
		op:     op,
		jobID:  jobID,
		method: http.MethodGet,
		path:   jobPath("/results", jobID, escape(bucketID)),
		query:  expandQuery(expand),
		want:   http.StatusOK,
	})
	if err != nil {
		return Bucket{}, err
	}
	var out Bucket
	if err := decodeDocument(op, jobID, "bucket "+bucketID, b, &out); err != nil {
		return Bucket{}, err
	}
	return out, nil
}

// ListJobs returns the jobs known to the engine
func (c *Client) ListJobs(ctx context.Context) ([]JobDetails, error) {
	const op = "list_jobs"
	_, b, err := c.do(ctx, call{op: op, method: http.MethodGet, path: "/jobs", want: http.StatusOK})
	if err != nil {
		return nil, err
	}
	out := []JobDetails{}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, perr.WithOp(perr.Wrap(err, perr.ErrorCodeJSON, "decode job list"), op)
		}
		return out, nil
	}
	var env struct {
		Documents []JobDetails `json:"documents"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, perr.WithOp(perr.Wrap(err, perr.ErrorCodeJSON, "decode job list"), op)
	}
	if env.Documents != nil {
		out = env.Documents
	}
	return out, nil
}

// GetJob fetches one job's details
func (c *Client) GetJob(ctx context.Context, jobID JobID) (JobDetails, error) {
	const op = "get_job"
	if err := requireJob(op, jobID); err != nil {
		return JobDetails{}, err
	}
	_, b, err := c.do(ctx, call{op: op, jobID: jobID, method: http.MethodGet, path: jobPath("/jobs", jobID), want: http.StatusOK})
	if err != nil {
		return JobDetails{}, err
	}
	var out JobDetails
	if err := decodeDocument(op, jobID, "job "+jobID, b, &out); err != nil {
		return JobDetails{}, err
	}
	return out, nil
}

// DeleteJob removes the job and its results from the engine
func (c *Client) DeleteJob(ctx context.Context, jobID JobID) (int, error) {
	const op = "delete_job"
	if err := requireJob(op, jobID); err != nil {
		return 0, err
	}
	status, _, err := c.do(ctx, call{op: op, jobID: jobID, method: http.MethodDelete, path: jobPath("/jobs", jobID), want: http.StatusOK})
	return status, err
}

// decodeDocument unpacks a single document envelope into out
func decodeDocument[T any](op, jobID, what string, b []byte, out *T) error {
	var env singleDocument
	if err := json.Unmarshal(b, &env); err != nil {
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeJSON, "decode %s", what), op)
	}
	if !env.present() {
		return notFound(op, jobID, what)
	}
	if err := json.Unmarshal(env.Document, out); err != nil {
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeJSON, "decode %s", what), op)
	}
	return nil
}

// encodeBatch turns an upload batch into the request body
func encodeBatch(batch any) ([]byte, error) {
	var b []byte
	switch v := batch.(type) {
	case nil:
		return nil, perr.InvalidArgf("engine upload: batch is nil")
	case []byte:
		b = v
	case json.RawMessage:
		b = v
	case string:
		b = []byte(v)
	case io.Reader:
		rb, err := io.ReadAll(v)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "read upload batch")
		}
		b = rb
	default:
		mb, err := json.Marshal(v)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeJSON, "encode upload batch")
		}
		b = mb
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, perr.InvalidArgf("engine upload: batch is empty")
	}
	return b, nil
}
