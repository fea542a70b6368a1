// Package module wires the feed runner as a modkit module
package module

import (
	"context"

	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/modkit"
	"enginefeed/internal/modkit/httpkit"
	modreg "enginefeed/internal/modkit/module"
	"enginefeed/internal/modkit/repokit"
	"enginefeed/internal/services/feed/domain"
	"enginefeed/internal/services/feed/repo"
	"enginefeed/internal/services/feed/service"
)

// Ports exported by the feed module
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements modkit.Module for the feed runner
type Module struct {
	deps  modkit.Deps
	opts  Options
	db    repokit.TxRunner
	ports Ports
}

// New constructs the feed module from deps.Cfg with overrides laid on top.
// WithPorts(domain.Adapters) replaces any adapter the module would build from deps
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("feed")}, opts...)...)
	ad, _ := b.Ports.(domain.Adapters)

	cfg := FromConfig(deps.Cfg).merge(overrides)

	if ad.Acquire == nil {
		ad.Acquire = poolAcquire(deps.EnginePool(), engine.OptionsFromConfig(deps.Cfg))
	}
	if deps.CH != nil {
		recs := repo.NewRecords(deps.CH)
		if ad.Source == nil {
			ad.Source = recs
		}
		if ad.Loader == nil {
			ad.Loader = recs
		}
	}

	m := &Module{deps: deps, opts: cfg}
	var binder repokit.Binder[domain.ResultsRepo]
	if cfg.Sink && deps.PG != nil {
		hooks := []repokit.BeginHook{repokit.StatementTimeout(cfg.StatementTimeout)}
		if cfg.AsyncCommit {
			hooks = append(hooks, repokit.SyncCommitOff())
		}
		m.db = repokit.WithBeginHooks(deps.PG, hooks...)
		binder = repo.NewPG()
	}

	svc := service.New(ad.Acquire, ad.Source, ad.Loader, m.db, binder, service.Config{
		UploadRetries: cfg.UploadRetries,
		RetryBase:     cfg.RetryBase,
		RetryMax:      cfg.RetryMax,
		CloseTimeout:  cfg.CloseTimeout,
		AnomalyScore:  cfg.AnomalyScore,
	})
	m.ports = Ports{Runner: svc}
	return m
}

// poolAcquire hands out pooled clients for one endpoint
func poolAcquire(p *engine.Pool, o engine.Options) domain.AcquireFunc {
	return func(ctx context.Context) (domain.Engine, func(), error) {
		c, release, err := p.Acquire(ctx, o)
		if err != nil {
			return nil, nil, err
		}
		return c, release, nil
	}
}

// EnsureSchema creates the results tables when the sink is wired
func (m *Module) EnsureSchema(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	return repo.EnsureSchema(ctx, m.db)
}

// Options returns the merged options the module runs with
func (m *Module) Options() Options { return m.opts }

// Name returns the module name
func (m *Module) Name() string { return "feed" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// MountRoutes is a no-op: the feed runner has no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}

// Register builds the module and makes its ports resolvable via the registry
func Register(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	m := New(deps, overrides, opts...)
	modreg.Register(m.Name(), m.Ports())
	return m
}
