// Package modkit provides module wiring and core deps
package modkit

import (
	"enginefeed/internal/adapters/engine"
	"enginefeed/internal/modkit/repokit"
	"enginefeed/internal/platform/config"
	"enginefeed/internal/platform/logger"
	"enginefeed/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse

	// Engines hands out engine clients bounded per endpoint
	Engines *engine.Pool
}

// EnginePool returns Engines or a pool sized from ENGINE_POOL_SIZE
func (d Deps) EnginePool() *engine.Pool {
	if d.Engines != nil {
		return d.Engines
	}
	return engine.NewPool(engine.PoolSizeFromConfig(d.Cfg))
}
