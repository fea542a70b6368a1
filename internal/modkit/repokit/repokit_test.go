package repokit

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"enginefeed/internal/platform/testkit"
)

// recQ records every statement it sees
type recQ struct {
	sqls    []string
	execErr error
}

func (r *recQ) Exec(_ context.Context, sql string, _ ...any) (CommandTag, error) {
	r.sqls = append(r.sqls, sql)
	return nil, r.execErr
}
func (r *recQ) Query(_ context.Context, sql string, _ ...any) (Rows, error) {
	r.sqls = append(r.sqls, sql)
	return nil, nil
}
func (r *recQ) QueryRow(_ context.Context, sql string, _ ...any) Row {
	r.sqls = append(r.sqls, sql)
	return nil
}

// recTx runs fn against its recQ
type recTx struct {
	recQ
	txs int
}

func (r *recTx) Tx(_ context.Context, fn func(Queryer) error) error {
	r.txs++
	return fn(&r.recQ)
}

func TestWithBeginHooks_RunBeforeFn(t *testing.T) {
	tx := &recTx{}
	hooked := WithBeginHooks(tx, StatementTimeout(1500*time.Millisecond), SyncCommitOff())

	err := WithTx(context.Background(), hooked, func(q Queryer) error {
		_, err := q.Exec(context.Background(), "INSERT INTO feed_buckets")
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	want := []string{
		"SET LOCAL statement_timeout = 1500",
		"SET LOCAL synchronous_commit = off",
		"INSERT INTO feed_buckets",
	}
	if !reflect.DeepEqual(tx.sqls, want) || tx.txs != 1 {
		t.Fatalf("statements %q txs %d", tx.sqls, tx.txs)
	}

	// outside Tx the hooks do not run
	tx.sqls = nil
	_, _ = hooked.Exec(context.Background(), "SELECT 1")
	_, _ = hooked.Query(context.Background(), "SELECT 2")
	_ = hooked.QueryRow(context.Background(), "SELECT 3")
	if !reflect.DeepEqual(tx.sqls, []string{"SELECT 1", "SELECT 2", "SELECT 3"}) {
		t.Fatalf("delegation %q", tx.sqls)
	}
}

func TestWithBeginHooks_HookErrorSkipsFn(t *testing.T) {
	tx := &recTx{recQ: recQ{execErr: errors.New("read only")}}
	ran := false
	err := WithBeginHooks(tx, SyncCommitOff()).Tx(context.Background(), func(Queryer) error {
		ran = true
		return nil
	})
	if err == nil || ran {
		t.Fatalf("err=%v ran=%v", err, ran)
	}
}

func TestWithBeginHooks_NoHooksIsIdentity(t *testing.T) {
	tx := &recTx{}
	if got := WithBeginHooks(tx); got != TxRunner(tx) {
		t.Fatalf("wrapped without hooks")
	}
	q := &recQ{}
	if err := StatementTimeout(0)(context.Background(), q); err != nil || len(q.sqls) != 0 {
		t.Fatalf("zero timeout issued %q", q.sqls)
	}
}

func TestBinder(t *testing.T) {
	type repo struct{ q Queryer }
	b := BindFunc[repo](func(q Queryer) repo { return repo{q: q} })

	q := &recQ{}
	if got := MustBind[repo](b, q); got.q != Queryer(q) {
		t.Fatalf("bound to wrong queryer")
	}
	testkit.MustPanic(t, func() { MustBind[repo](b, nil) })
}

type guard struct {
	err      error
	deadline bool
}

func (g *guard) Guard(ctx context.Context) error {
	_, g.deadline = ctx.Deadline()
	return g.err
}

func TestMustGuard(t *testing.T) {
	ctx := context.Background()

	g := &guard{}
	testkit.MustNotPanic(t, func() { MustGuard(ctx, g, time.Second) })
	if !g.deadline {
		t.Fatalf("timeout not applied")
	}

	g = &guard{}
	testkit.MustNotPanic(t, func() { MustGuard(ctx, g, 0) })
	if g.deadline {
		t.Fatalf("zero timeout should keep the caller's context")
	}

	testkit.MustPanic(t, func() { MustGuard(ctx, &guard{err: errors.New("ch: down")}, time.Second) })
	testkit.MustPanic(t, func() { MustGuard(ctx, nil, 0) })
}
