package store

import (
	"context"
	"errors"
	"time"

	perr "enginefeed/internal/platform/errors"
	"enginefeed/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgAdapter wraps pg.PG and implements TxRunner.
// Driver errors come back as project errors with codes mapped from SQLSTATE
type pgAdapter struct {
	p *pg.PG
}

func newPGAdapter(p *pg.PG) *pgAdapter { return &pgAdapter{p: p} }

func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil || a.p == nil {
		return errors.New("pg: nil adapter")
	}
	var one int
	return a.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (a *pgAdapter) Close() error { a.p.Close(); return nil }

func (a *pgAdapter) tracer() emitter {
	return emitter{tracer: a.p.Tracer, slowUS: int64(a.p.SlowMs) * 1000}
}

func (a *pgAdapter) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return execOn(ctx, a.p.Pool, a.tracer(), sql, args)
}

func (a *pgAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return queryOn(ctx, a.p.Pool, a.tracer(), sql, args)
}

func (a *pgAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return queryRowOn(ctx, a.p.Pool, a.tracer(), sql, args)
}

// Tx runs fn in a transaction; fn's error rolls back and is returned unchanged
func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.p.Pool.Begin(ctx)
	if err != nil {
		return perr.FromPostgres(err, "pg begin")
	}
	if err := fn(txQuerier{tx: tx, em: a.tracer()}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return perr.FromPostgres(err, "pg commit")
	}
	return nil
}

// pgxQuerier is the pgx surface shared by pools and transactions
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func execOn(ctx context.Context, q pgxQuerier, em emitter, sql string, args []any) (CommandTag, error) {
	start := time.Now()
	ct, err := q.Exec(ctx, sql, args...)
	em.emit(ctx, sql, args, start, err)
	if err != nil {
		return tag{ct}, perr.FromPostgres(err, "pg exec")
	}
	return tag{ct}, nil
}

func queryOn(ctx context.Context, q pgxQuerier, em emitter, sql string, args []any) (Rows, error) {
	start := time.Now()
	rs, err := q.Query(ctx, sql, args...)
	em.emit(ctx, sql, args, start, err)
	if err != nil {
		return nil, perr.FromPostgres(err, "pg query")
	}
	return rows{r: rs}, nil
}

func queryRowOn(ctx context.Context, q pgxQuerier, em emitter, sql string, args []any) Row {
	start := time.Now()
	r := q.QueryRow(ctx, sql, args...)
	// the statement only finishes on Scan
	return row{r: r, after: func(err error) { em.emit(ctx, sql, args, start, err) }}
}

// emitter forwards statement timings to an optional tracer
type emitter struct {
	tracer pg.QueryTracer
	slowUS int64
}

func (e emitter) emit(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if e.tracer == nil {
		return
	}
	elapsedUS := time.Since(start).Microseconds()
	e.tracer.OnQuery(ctx, pg.QueryEvent{
		SQL:       sql,
		Args:      args,
		ElapsedUS: elapsedUS,
		Err:       err,
		Slow:      e.slowUS > 0 && elapsedUS >= e.slowUS,
	})
}

// adapters from pgx to the store Row/Rows/CommandTag seams

type row struct {
	r     pgx.Row
	after func(error)
}

func (x row) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return perr.Wrap(err, perr.ErrorCodeNotFound, "pg scan")
		}
		return perr.FromPostgres(err, "pg scan")
	}
	return nil
}

type rows struct{ r pgx.Rows }

func (x rows) Next() bool { return x.r.Next() }
func (x rows) Scan(dst ...any) error {
	if err := x.r.Scan(dst...); err != nil {
		return perr.FromPostgres(err, "pg scan")
	}
	return nil
}
func (x rows) Err() error {
	if err := x.r.Err(); err != nil {
		return perr.FromPostgres(err, "pg rows")
	}
	return nil
}
func (x rows) Close() { x.r.Close() }
func (x rows) Columns() []string {
	f := x.r.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = f[i].Name
	}
	return out
}

type tag struct{ t pgconn.CommandTag }

func (t tag) String() string      { return t.t.String() }
func (t tag) RowsAffected() int64 { return t.t.RowsAffected() }

// txQuerier is the RowQuerier handed to Tx callbacks
type txQuerier struct {
	tx pgx.Tx
	em emitter
}

func (t txQuerier) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return execOn(ctx, t.tx, t.em, sql, args)
}

func (t txQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return queryOn(ctx, t.tx, t.em, sql, args)
}

func (t txQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return queryRowOn(ctx, t.tx, t.em, sql, args)
}
