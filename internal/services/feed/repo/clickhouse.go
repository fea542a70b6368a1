// Package repo holds the feed runner's storage: records in clickhouse, results in postgres
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"enginefeed/internal/modkit/repokit"
	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/store"
	"enginefeed/internal/platform/validate"
	"enginefeed/internal/services/feed/domain"
)

var recordColumns = []string{"ts", "partition", "payload"}

// Records reads and loads the record table in clickhouse
type Records struct {
	ch repokit.Columnar
}

// NewRecords returns a Source and Loader over ch
func NewRecords(ch repokit.Columnar) *Records {
	if ch == nil {
		panic("feed repo: nil clickhouse")
	}
	return &Records{ch: ch}
}

var (
	_ domain.Source = (*Records)(nil)
	_ domain.Loader = (*Records)(nil)
)

func table(name string) (string, error) {
	if !validate.Ident(name) {
		return "", perr.WithField(perr.InvalidArgf("invalid table name %q", name), "table")
	}
	return name, nil
}

// EnsureTable creates the record table if missing. Rows sharing a
// timestamp and partition collapse to the last one loaded
func (r *Records) EnsureTable(ctx context.Context, name string) error {
	t, err := table(name)
	if err != nil {
		return err
	}
	return r.ch.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			ts        DateTime64(3, 'UTC'),
			partition String,
			payload   String
		)
		ENGINE = ReplacingMergeTree
		ORDER BY (ts, partition)`, t))
}

// Load inserts recs in one batch and returns how many were sent
func (r *Records) Load(ctx context.Context, name string, recs []domain.Record) (int, error) {
	t, err := table(name)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		payload, err := json.Marshal(rec.Fields)
		if err != nil {
			return 0, perr.Wrapf(err, perr.ErrorCodeJSON, "encode record %d", i)
		}
		rows[i] = []any{rec.Time.UTC(), rec.Partition, string(payload)}
	}
	if err := r.ch.Insert(ctx, t, recordColumns, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Scan pages through the table in (ts, partition) order and hands each page to fn
func (r *Records) Scan(ctx context.Context, q domain.Query, fn func([]domain.Record) error) error {
	t, err := table(q.Table)
	if err != nil {
		return err
	}
	if q.BatchSize <= 0 {
		return perr.WithField(perr.InvalidArgf("batch size must be positive"), "batchSize")
	}
	scan := scanRecord(q.Fields)
	for offset := 0; ; offset += q.BatchSize {
		rows, err := r.ch.Query(ctx, fmt.Sprintf(
			"SELECT ts, partition, payload FROM %s FINAL ORDER BY ts ASC, partition ASC LIMIT %d OFFSET %d",
			t, q.BatchSize, offset))
		if err != nil {
			return err
		}
		page, err := store.Collect(rows, scan)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < q.BatchSize {
			return nil
		}
	}
}

// scanRecord decodes one row, keeping only fields when it is non-empty
func scanRecord(fields []string) func(store.Row) (domain.Record, error) {
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	return func(row store.Row) (domain.Record, error) {
		var (
			ts        time.Time
			partition string
			payload   string
		)
		if err := row.Scan(&ts, &partition, &payload); err != nil {
			return domain.Record{}, err
		}
		all := map[string]any{}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &all); err != nil {
				return domain.Record{}, perr.Wrapf(err, perr.ErrorCodeJSON, "record payload at %s", ts.Format(time.RFC3339))
			}
		}
		rec := domain.Record{Time: ts.UTC(), Partition: partition, Fields: all}
		if len(keep) > 0 {
			rec.Fields = make(map[string]any, len(keep))
			for k, v := range all {
				if keep[k] {
					rec.Fields[k] = v
				}
			}
		}
		return rec, nil
	}
}
