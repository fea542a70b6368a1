package repo

import (
	"context"
	"errors"
	"reflect"

	"enginefeed/internal/modkit/repokit"
)

// memRows is a repokit.Rows over in memory data
type memRows struct {
	cols   []string
	data   [][]any
	idx    int
	err    error
	closed bool
}

func newMemRows(cols []string, data ...[]any) *memRows {
	return &memRows{cols: cols, data: data, idx: -1}
}

func (r *memRows) Columns() []string { return r.cols }
func (r *memRows) Err() error        { return r.err }
func (r *memRows) Close()            { r.closed = true }
func (r *memRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}
func (r *memRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return errors.New("scan arity")
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		dv.Set(reflect.ValueOf(row[i]))
	}
	return nil
}

// memColumnar is a repokit.Columnar that serves queued pages and records writes
type memColumnar struct {
	execs   []string
	inserts []insert
	queries []string
	pages   []*memRows
	err     error
}

type insert struct {
	table   string
	columns []string
	rows    [][]any
}

func (m *memColumnar) Exec(_ context.Context, sql string, _ ...any) error {
	m.execs = append(m.execs, sql)
	return m.err
}

func (m *memColumnar) Insert(_ context.Context, table string, columns []string, rows [][]any) error {
	if m.err != nil {
		return m.err
	}
	m.inserts = append(m.inserts, insert{table: table, columns: columns, rows: rows})
	return nil
}

func (m *memColumnar) Query(_ context.Context, sql string, _ ...any) (repokit.Rows, error) {
	m.queries = append(m.queries, sql)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.pages) == 0 {
		return newMemRows(recordColumns), nil
	}
	p := m.pages[0]
	m.pages = m.pages[1:]
	return p, nil
}

func (m *memColumnar) Ping(context.Context) error { return nil }
func (m *memColumnar) Close() error               { return nil }

type memTag int64

func (m memTag) String() string      { return "INSERT" }
func (m memTag) RowsAffected() int64 { return int64(m) }

// memRow scans one value into the first destination
type memRow struct {
	v   any
	err error
}

func (r memRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	reflect.ValueOf(dest[0]).Elem().Set(reflect.ValueOf(r.v))
	return nil
}

// stmt is one recorded statement
type stmt struct {
	sql  string
	args []any
}

// memQuerier is a repokit.Queryer that records statements and hands back canned results
type memQuerier struct {
	stmts    []stmt
	tag      memTag
	execErr  error
	rows     *memRows
	queryErr error
	row      memRow
}

func (m *memQuerier) Exec(_ context.Context, sql string, args ...any) (repokit.CommandTag, error) {
	m.stmts = append(m.stmts, stmt{sql, args})
	return m.tag, m.execErr
}

func (m *memQuerier) Query(_ context.Context, sql string, args ...any) (repokit.Rows, error) {
	m.stmts = append(m.stmts, stmt{sql, args})
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.rows, nil
}

func (m *memQuerier) QueryRow(_ context.Context, sql string, args ...any) repokit.Row {
	m.stmts = append(m.stmts, stmt{sql, args})
	return m.row
}
