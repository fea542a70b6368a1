// Package csvload reads time-series records from CSV files.
// The first row is the header; one column holds the timestamp, another may
// name the partition. Numeric cells become float64, the rest stay strings
package csvload

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	perr "enginefeed/internal/platform/errors"
	ptime "enginefeed/internal/platform/time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	defaultTimeColumn = "time"
	defaultBatchSize  = 500
)

// Record is one CSV row keyed by its timestamp and partition
type Record struct {
	Time      time.Time
	Partition string
	Fields    map[string]any
}

// Options controls parsing
type Options struct {
	// TimeColumn names the timestamp column, default "time"
	TimeColumn string
	// PartitionColumn is optional; when set the column must exist
	PartitionColumn string
	// BatchSize bounds NextBatch, default 500
	BatchSize int
	// Comma is the field delimiter, default ','
	Comma rune
}

func (o Options) withDefaults() Options {
	if o.TimeColumn == "" {
		o.TimeColumn = defaultTimeColumn
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Comma == 0 {
		o.Comma = ','
	}
	return o
}

// Reader yields records from a CSV stream
type Reader struct {
	opts    Options
	csv     *csv.Reader
	closer  io.Closer
	header  []string
	timeIdx int
	partIdx int
	rows    int
}

// Open reads the CSV file at path
func Open(path string, o Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "csv %s", path)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "csv %s", path)
	}
	r, err := NewReader(f, o)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header from r. UTF-8 and UTF-16 input with a BOM is
// decoded; input without a BOM is taken as UTF-8
func NewReader(r io.Reader, o Options) (*Reader, error) {
	o = o.withDefaults()
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(dec)
	cr.Comma = o.Comma
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, perr.InvalidArgf("csv is empty")
	}
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "csv header")
	}

	rd := &Reader{opts: o, csv: cr, timeIdx: -1, partIdx: -1}
	seen := make(map[string]bool, len(head))
	for i, h := range head {
		name := CleanHeader(h)
		if name == "" {
			return nil, perr.InvalidArgf("csv header column %d is empty", i+1)
		}
		if seen[name] {
			return nil, perr.InvalidArgf("csv header repeats column %q", name)
		}
		seen[name] = true
		rd.header = append(rd.header, name)
		switch name {
		case o.TimeColumn:
			rd.timeIdx = i
		case o.PartitionColumn:
			rd.partIdx = i
		}
	}
	if rd.timeIdx < 0 {
		return nil, perr.WithField(perr.InvalidArgf("csv has no %q column", o.TimeColumn), o.TimeColumn)
	}
	if o.PartitionColumn != "" && rd.partIdx < 0 {
		return nil, perr.WithField(perr.InvalidArgf("csv has no %q column", o.PartitionColumn), o.PartitionColumn)
	}
	return rd, nil
}

// Header returns the cleaned column names
func (r *Reader) Header() []string { return append([]string(nil), r.header...) }

// Rows reports how many data rows were read so far
func (r *Reader) Rows() int { return r.rows }

// Next returns the next record or io.EOF
func (r *Reader) Next() (Record, error) {
	cells, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}
	line := r.rows + 2
	if err != nil {
		return Record{}, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "csv line %d", line)
	}
	r.rows++

	ts, err := ptime.Parse(cells[r.timeIdx])
	if err != nil {
		return Record{}, perr.WithField(perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "csv line %d", line), r.opts.TimeColumn)
	}

	rec := Record{Time: ts, Fields: make(map[string]any, len(cells))}
	for i, c := range cells {
		switch i {
		case r.timeIdx:
			continue
		case r.partIdx:
			rec.Partition = strings.TrimSpace(c)
			continue
		}
		if v, ok := cell(c); ok {
			rec.Fields[r.header[i]] = v
		}
	}
	return rec, nil
}

// NextBatch returns up to BatchSize records; io.EOF once nothing is left
func (r *Reader) NextBatch() ([]Record, error) {
	out := make([]Record, 0, r.opts.BatchSize)
	for len(out) < r.opts.BatchSize {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

// Close releases the file opened by Open
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// cell converts a raw cell; empty cells are dropped
func cell(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	// NaN and Inf stay strings; they have no JSON form
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f, true
	}
	return s, true
}
