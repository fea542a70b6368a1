package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/core/version"
	"enginefeed/internal/modkit"
	"enginefeed/internal/modkit/module"
	"enginefeed/internal/modkit/repokit"
	"enginefeed/internal/platform/config"
	"enginefeed/internal/platform/logger"
	"enginefeed/internal/platform/store"
	pstrings "enginefeed/internal/platform/strings"

	feeddom "enginefeed/internal/services/feed/domain"
	feedmod "enginefeed/internal/services/feed/module"
)

func main() {
	root := config.New()
	defaults := feedmod.FromConfig(root)

	var (
		fJob       = flag.String("job", "", "job config file (.json, .yaml or .yml)")
		fTable     = flag.String("table", defaults.Table, "clickhouse table records are read from and loaded into")
		fFields    = flag.String("fields", strings.Join(defaults.Fields, ","), "comma separated record fields to send; empty sends all")
		fTimeField = flag.String("time-field", defaults.TimeField, "key record times are sent under; defaults to the job's time field")
		fPartition = flag.String("partition-field", defaults.PartitionField, "key the partition value is sent under, and the CSV partition column")
		fBatch     = flag.Int("batch", defaults.BatchSize, "records per upload")
		fExpand    = flag.Bool("expand", defaults.Expand, "fetch anomaly records with each bucket")
		fLoad      = flag.String("load", "", "CSV file to load into -table before the run")
		fCSVTime   = flag.String("csv-time", "time", "time column of the -load CSV")
		fLoadOnly  = flag.Bool("load-only", false, "load -load and exit without running a job")
		fResults   = flag.String("results", "", "print the results of an existing job and exit")
		fList      = flag.Bool("list", false, "print the engine's jobs and exit")
		fStored    = flag.String("stored", "", "print the buckets stored for a job and exit")
		fVersion   = flag.Bool("version", false, "print the build version and exit")
	)
	flag.Parse()

	if *fVersion {
		printJSON(version.Info("enginefeed"))
		return
	}

	l := logger.Get()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *fLoadOnly && *fLoad == "" {
		l.Fatal().Msg("-load-only needs -load")
	}
	m := mode{list: *fList, results: *fResults, stored: *fStored}
	if !m.valid() {
		l.Fatal().Msg("-results, -list and -stored are mutually exclusive")
	}

	deps := modkit.Deps{
		Log:     *l,
		Cfg:     root,
		Engines: engine.NewPool(engine.PoolSizeFromConfig(root)),
	}
	defer deps.Engines.Close()

	if m.needsStore() {
		st, err := store.Open(ctx, store.FromConfig(root, "enginefeed"), store.WithLogger(*l))
		if err != nil {
			l.Fatal().Err(err).Msg("store.Open failed")
		}
		repokit.MustGuard(ctx, st, 10*time.Second)
		defer func() {
			if err := st.Close(context.Background()); err != nil {
				l.Error().Err(err).Msg("failed to close store")
			}
		}()
		deps.PG, deps.CH = st.PG, st.CH
	}

	fm := feedmod.Register(deps, feedmod.Options{
		Table:          *fTable,
		Fields:         pstrings.SplitCSV(*fFields),
		TimeField:      *fTimeField,
		PartitionField: *fPartition,
		BatchSize:      *fBatch,
	})
	runner := module.MustPortsOf[feedmod.Ports](fm).Runner

	switch {
	case *fList:
		jobs, err := runner.Jobs(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("list jobs failed")
		}
		printJSON(jobs)
		return
	case *fResults != "":
		buckets, err := runner.Results(ctx, *fResults, *fExpand)
		if err != nil {
			l.Fatal().Err(err).Str("job_id", *fResults).Msg("fetch results failed")
		}
		printJSON(buckets)
		return
	case *fStored != "":
		stored, err := runner.Stored(ctx, *fStored)
		if err != nil {
			l.Fatal().Err(err).Str("job_id", *fStored).Msg("read stored results failed")
		}
		printJSON(stored)
		return
	}

	if *fLoad != "" {
		n, err := runner.Load(ctx, feeddom.LoadRequest{
			Path:            *fLoad,
			Table:           *fTable,
			TimeColumn:      *fCSVTime,
			PartitionColumn: *fPartition,
			BatchSize:       *fBatch,
		})
		if err != nil {
			l.Fatal().Err(err).Str("path", *fLoad).Msg("load failed")
		}
		l.Info().Int("rows", n).Str("table", *fTable).Msg("loaded")
		if *fLoadOnly {
			return
		}
	}

	if *fJob == "" {
		l.Fatal().Msg("-job is required to run a feed")
	}
	job, err := engine.LoadJobConfig(*fJob)
	if err != nil {
		l.Fatal().Err(err).Str("path", *fJob).Msg("bad job config")
	}
	if err := fm.EnsureSchema(ctx); err != nil {
		l.Fatal().Err(err).Msg("results schema failed")
	}

	sum, err := runner.Run(ctx, feeddom.Request{
		Job:    job,
		Query:  fm.Options().Query(),
		Expand: *fExpand,
	})
	if err != nil {
		l.Fatal().Err(err).Str("job_id", sum.JobID).Msg("feed failed")
	}
	printJSON(sum)
}

// mode is the read-only action picked by flags; the zero mode runs a feed
type mode struct {
	list    bool
	results string
	stored  string
}

func (m mode) valid() bool {
	n := 0
	for _, set := range []bool{m.list, m.results != "", m.stored != ""} {
		if set {
			n++
		}
	}
	return n <= 1
}

// needsStore is false for modes that only talk to the engine
func (m mode) needsStore() bool { return !m.list && m.results == "" }

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Get().Error().Err(err).Msg("write output")
	}
}
