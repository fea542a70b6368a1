package ch

import (
	"context"
	"errors"
	"testing"

	perr "enginefeed/internal/platform/errors"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// fakeBatch records appends; only the methods Insert calls are implemented
type fakeBatch struct {
	driver.Batch
	rows      [][]any
	appendErr error
	sendErr   error
	aborted   bool
	sent      bool
}

func (b *fakeBatch) Append(v ...any) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.rows = append(b.rows, v)
	return nil
}
func (b *fakeBatch) Abort() error { b.aborted = true; return nil }
func (b *fakeBatch) Send() error  { b.sent = true; return b.sendErr }

type fakeConn struct {
	batch    *fakeBatch
	prepared string
	execSQL  string
	execErr  error
	pingErr  error
	closed   bool
}

func (c *fakeConn) Exec(_ context.Context, q string, _ ...any) error {
	c.execSQL = q
	return c.execErr
}
func (c *fakeConn) Query(context.Context, string, ...any) (driver.Rows, error) {
	return nil, errors.New("no rows here")
}
func (c *fakeConn) PrepareBatch(_ context.Context, q string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.prepared = q
	return c.batch, nil
}
func (c *fakeConn) Ping(context.Context) error { return c.pingErr }
func (c *fakeConn) Close() error               { c.closed = true; return nil }

func withConn(t *testing.T, fc *fakeConn) {
	t.Helper()
	prev := openConn
	openConn = func(*clickhouse.Options) (conn, error) { return fc, nil }
	t.Cleanup(func() { openConn = prev })
}

func TestOpen_BadDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "clickhouse://host:notaport/db"})
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}

func TestOpen_PingFailureClosesConn(t *testing.T) {
	fc := &fakeConn{pingErr: errors.New("refused")}
	withConn(t, fc)

	_, err := Open(context.Background(), Config{URL: "clickhouse://localhost:9000/feed"})
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("want unavailable, got %v", err)
	}
	if !fc.closed {
		t.Fatalf("conn left open after failed ping")
	}
}

func TestInsert_BatchesRows(t *testing.T) {
	fc := &fakeConn{batch: &fakeBatch{}}
	withConn(t, fc)

	c, err := Open(context.Background(), Config{URL: "clickhouse://localhost:9000/feed", Role: "test"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rows := [][]any{{"j1", 1.0}, {"j1", 2.0}}
	if err := c.Insert(context.Background(), "records", []string{"job_id", "value"}, rows); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if fc.prepared != "INSERT INTO records (job_id, value)" {
		t.Fatalf("prepared %q", fc.prepared)
	}
	if !fc.batch.sent || len(fc.batch.rows) != 2 {
		t.Fatalf("sent=%v rows=%d", fc.batch.sent, len(fc.batch.rows))
	}

	// nothing to send
	fc.prepared = ""
	if err := c.Insert(context.Background(), "records", nil, nil); err != nil || fc.prepared != "" {
		t.Fatalf("empty insert prepared %q err=%v", fc.prepared, err)
	}
}

func TestInsert_AppendFailureAborts(t *testing.T) {
	fc := &fakeConn{batch: &fakeBatch{appendErr: errors.New("type mismatch")}}
	c := &CH{conn: fc}

	err := c.Insert(context.Background(), "records", nil, [][]any{{"x"}})
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
	if !fc.batch.aborted || fc.batch.sent {
		t.Fatalf("aborted=%v sent=%v", fc.batch.aborted, fc.batch.sent)
	}

	fc = &fakeConn{batch: &fakeBatch{sendErr: errors.New("server gone")}}
	c = &CH{conn: fc}
	if err := c.Insert(context.Background(), "records", nil, [][]any{{"x"}}); !perr.IsCode(err, perr.ErrorCodeDB) {
		t.Fatalf("send failure code: %v", err)
	}
}

func TestExecQueryPing_Wrap(t *testing.T) {
	fc := &fakeConn{execErr: errors.New("syntax"), pingErr: errors.New("down")}
	c := &CH{conn: fc}

	if err := c.Exec(context.Background(), "CREATE TABLE x"); !perr.IsCode(err, perr.ErrorCodeDB) || fc.execSQL != "CREATE TABLE x" {
		t.Fatalf("exec: %v", err)
	}
	if _, err := c.Query(context.Background(), "SELECT 1"); !perr.IsCode(err, perr.ErrorCodeDB) {
		t.Fatalf("query: %v", err)
	}
	if err := c.Ping(context.Background()); !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("ping: %v", err)
	}
	_ = c.Close()
	if !fc.closed {
		t.Fatalf("close not forwarded")
	}
}

func TestBuildClientInfo(t *testing.T) {
	ci := BuildClientInfo(" enginefeed ", "abc1234")
	if len(ci.Products) != 4 {
		t.Fatalf("products %v", ci.Products)
	}
	if ci.Products[0].Name != "enginefeed" || ci.Products[0].Version != "abc1234" {
		t.Fatalf("product %v", ci.Products[0])
	}
	if ci.Products[1].Version != "enginefeed" {
		t.Fatalf("role not trimmed: %q", ci.Products[1].Version)
	}
	if got := BuildClientInfo("x", "").Products[0].Version; got == "" {
		t.Fatalf("empty fallback version")
	}
}
