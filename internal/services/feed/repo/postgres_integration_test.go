//go:build integration_pg

package repo

import (
	"context"
	"testing"
	"time"

	"enginefeed/internal/modkit/repokit"
	"enginefeed/internal/platform/store"
	"enginefeed/internal/platform/store/pg/pgtest"
	"enginefeed/internal/services/feed/domain"
)

func TestPG_Integration(t *testing.T) {
	dsn := pgtest.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	st, err := store.Open(ctx, store.Config{
		AppName: "enginefeed-repo-it",
		PG:      store.PGConfig{Enabled: true, URL: dsn, MaxConns: 2, ConnectRetries: 3, PingTimeout: 5 * time.Second},
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	if err := EnsureSchema(ctx, st.PG); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	db := repokit.WithBeginHooks(st.PG, repokit.StatementTimeout(5*time.Second), repokit.SyncCommitOff())
	sum := domain.Summary{JobID: "job-it", Batches: 1, Records: 22, Buckets: 2, Anomalous: 1, Elapsed: time.Second}

	// twice, to prove reruns overwrite instead of failing
	for range 2 {
		err := db.Tx(ctx, func(q repokit.Queryer) error {
			r := NewPG().Bind(q)
			if _, err := r.UpsertBuckets(ctx, sum.JobID, buckets()); err != nil {
				return err
			}
			if _, err := r.UpsertRecords(ctx, sum.JobID, buckets()); err != nil {
				return err
			}
			return r.FinishRun(ctx, sum)
		})
		if err != nil {
			t.Fatalf("tx: %v", err)
		}
	}

	r := NewPG().Bind(st.PG)
	n, err := r.CountBuckets(ctx, sum.JobID)
	if err != nil || n != 2 {
		t.Fatalf("CountBuckets n=%d err=%v", n, err)
	}
	got, err := r.Buckets(ctx, sum.JobID)
	if err != nil || len(got) != 2 {
		t.Fatalf("Buckets %v err=%v", got, err)
	}
	if got[1].AnomalyScore != 87.5 || got[1].RecordCount != 2 || !got[1].BucketTime.Equal(t0.Add(time.Minute)) {
		t.Fatalf("bucket %+v", got[1])
	}
	recs, err := store.Scalar[int64](ctx, st.PG, `SELECT count(*) FROM feed_records WHERE job_id = $1 AND typical IS NULL`, sum.JobID)
	if err != nil || recs != 1 {
		t.Fatalf("null typical rows %d err=%v", recs, err)
	}
}
