// Package engine provides a REST client for the anomaly detection engine API
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/logger"
	"enginefeed/internal/platform/validate"

	"github.com/google/uuid"
)

const (
	defaultScheme         = "http"
	defaultHost           = "localhost"
	defaultPort           = 8080
	defaultBasePath       = "/engine/v2"
	defaultPageSize       = 100
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultMaxBodyBytes   = 64 << 20
	defaultUA             = "enginefeed"

	// bytes of an error body kept for diagnostics
	errBodyTail = 2048
)

// Options configures the Client
type Options struct {
	Scheme   string `json:"scheme" validate:"oneof=http https"`
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port" validate:"min=1,max=65535"`
	BasePath string `json:"basePath"`

	// PageSize is the take used when walking results
	PageSize int `json:"pageSize" validate:"min=1,max=10000"`

	// Timeout bounds every request round trip including the body read
	Timeout        time.Duration `json:"timeout" validate:"gt=0"`
	ConnectTimeout time.Duration `json:"connectTimeout" validate:"gt=0"`

	MaxBodyBytes int64  `json:"maxBodyBytes" validate:"gt=0"`
	UserAgent    string `json:"userAgent"`
}

// withDefaults fills zero values and normalizes the base path
func (o Options) withDefaults() Options {
	if o.Scheme == "" {
		o.Scheme = defaultScheme
	}
	o.Scheme = strings.ToLower(o.Scheme)
	if strings.TrimSpace(o.Host) == "" {
		o.Host = defaultHost
	}
	if o.Port == 0 {
		o.Port = defaultPort
	}
	if o.BasePath == "" {
		o.BasePath = defaultBasePath
	}
	o.BasePath = NormalizeBasePath(o.BasePath)
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	return o
}

// Addr returns host:port
func (o Options) Addr() string { return net.JoinHostPort(o.Host, strconv.Itoa(o.Port)) }

// root returns scheme://host:port/base
func (o Options) root() string { return o.Scheme + "://" + o.Addr() + o.BasePath }

// NormalizeBasePath ensures a single leading slash and no trailing slash.
// "/" and "" both normalize to ""
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// Client talks to one engine over a single reusable connection.
// Requests are serialized; at most one is outstanding at any time
type Client struct {
	http *http.Client
	tr   *http.Transport
	opts Options
	root string
	mu   sync.Mutex
	log  logger.Logger
	now  func() time.Time
	rid  func() string
}

// NewClient validates o, probes the engine address once, and returns a ready client.
// A failed probe is returned as ErrorCodeUnavailable and is never retried
func NewClient(ctx context.Context, o Options) (*Client, error) {
	o = o.withDefaults()
	if err := validate.Struct(o); err != nil {
		return nil, perr.WithOp(err, "engine.options")
	}

	d := &net.Dialer{Timeout: o.ConnectTimeout, KeepAlive: 30 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", o.Addr())
	if err != nil {
		return nil, perr.WithOp(
			perr.Wrapf(err, perr.ErrorCodeUnavailable, "engine connect %s failed", o.Addr()),
			"engine.connect",
		)
	}
	_ = conn.Close()

	tr := &http.Transport{
		DialContext:           d.DialContext,
		MaxConnsPerHost:       1,
		MaxIdleConns:          1,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   o.ConnectTimeout,
		ExpectContinueTimeout: time.Second,
	}

	c := &Client{
		http: &http.Client{Transport: tr},
		tr:   tr,
		opts: o,
		root: o.root(),
		log:  *logger.Named("engine"),
		now:  time.Now,
		rid:  uuid.NewString,
	}
	c.log.Debug().Str("root", c.root).Int("page_size", o.PageSize).Dur("timeout", o.Timeout).Msg("engine client ready")
	return c, nil
}

// Options returns the effective options after defaults
func (c *Client) Options() Options { return c.opts }

// CloseIdle releases the pooled connection; the client stays usable
func (c *Client) CloseIdle() { c.tr.CloseIdleConnections() }

// call describes one round trip
type call struct {
	op     string
	jobID  string
	method string
	path   string
	query  string
	body   []byte
	want   int
}

// do runs one request and returns the status and the fully read body.
// The response body is always drained and closed before do returns.
// A status other than cl.want yields a *StatusError wrapped with a matching code
func (c *Client) do(ctx context.Context, cl call) (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, nil, c.transportErr(cl, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	u := c.root + cl.path
	if cl.query != "" {
		u += "?" + cl.query
	}
	var rd io.Reader
	if cl.body != nil {
		rd = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, rd)
	if err != nil {
		return 0, nil, perr.WithOp(perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "engine new request failed"), cl.op)
	}
	reqID := c.rid()
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, c.transportErr(cl, err)
	}

	b, rerr := readBody(resp.Body, c.opts.MaxBodyBytes)
	lat := c.now().Sub(start)

	c.log.Debug().
		Str("op", cl.op).
		Str("method", cl.method).
		Str("path", cl.path).
		Str("job_id", cl.jobID).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Int("bytes", len(b)).
		Dur("latency", lat).
		Msg("engine http response")

	if rerr != nil {
		if errors.Is(rerr, errBodyTooLarge) {
			return resp.StatusCode, nil, perr.WithOp(
				perr.Newf(perr.ErrorCodeStatus, "engine %s response exceeds %d bytes", cl.op, c.opts.MaxBodyBytes),
				cl.op,
			)
		}
		return resp.StatusCode, nil, c.transportErr(cl, rerr)
	}

	if resp.StatusCode != cl.want {
		se := newStatusError(cl.op, cl.jobID, resp.StatusCode, b)
		c.log.Warn().
			Str("op", cl.op).
			Str("job_id", cl.jobID).
			Str("request_id", reqID).
			Int("status", resp.StatusCode).
			Int("want", cl.want).
			Str("body", se.Body).
			Msg("engine unexpected status")
		return resp.StatusCode, b, se.wrap()
	}
	return resp.StatusCode, b, nil
}

// transportErr classifies failures where no usable response arrived
func (c *Client) transportErr(cl call, err error) error {
	code := perr.ErrorCodeUnavailable
	msg := "engine %s request failed"
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		code = perr.ErrorCodeTimeout
		msg = "engine %s request timed out"
	case errors.Is(err, context.Canceled):
		msg = "engine %s request canceled"
	}
	c.log.Warn().Err(err).Str("op", cl.op).Str("job_id", cl.jobID).Str("code", code.String()).Msg("engine transport error")
	return perr.WithOp(perr.Wrapf(err, code, msg, cl.op), cl.op)
}

var errBodyTooLarge = errors.New("response body too large")

// readBody reads at most max bytes, then drains whatever is left so the
// connection can be reused, and closes the body
func readBody(rc io.ReadCloser, max int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(rc, max+1))
	if err == nil && int64(len(b)) > max {
		err = errBodyTooLarge
		b = nil
	}
	if derr := drainAndClose(rc); err == nil && derr != nil {
		err = derr
	}
	return b, err
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, rc)
	return rc.Close()
}

// requireJob rejects empty job ids before any request is made
func requireJob(op, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return perr.WithOp(perr.InvalidArgf("engine %s: job id is required", op), op)
	}
	return nil
}

func jobPath(prefix, jobID string, rest ...string) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte('/')
	sb.WriteString(escape(jobID))
	for _, r := range rest {
		sb.WriteByte('/')
		sb.WriteString(r)
	}
	return sb.String()
}

func expandQuery(expand bool) string { return fmt.Sprintf("expand=%t", expand) }
