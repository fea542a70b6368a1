// Package module serves the in memory engine as a modkit module
package module

import (
	"enginefeed/internal/adapters/engine/enginetest"
	"enginefeed/internal/modkit"
	"enginefeed/internal/modkit/httpkit"
)

// Ports exported by the stub module
type Ports struct {
	Engine *enginetest.Engine
}

// Module implements modkit.Module for the stub engine
type Module struct {
	b     modkit.Built
	ports Ports
}

// New builds the stub from STUB_* settings. The API mounts under the
// configured base path unless WithPrefix overrides it, and WithPorts(*enginetest.Engine)
// serves an existing engine instead of a fresh one
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	o := enginetest.FromConfig(deps.Cfg)
	eng := enginetest.New(o)

	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("stub"),
		modkit.WithPrefix(eng.BasePath()),
	}, opts...)...)
	if e, ok := b.Ports.(*enginetest.Engine); ok && e != nil {
		eng = e
	}
	return &Module{b: b, ports: Ports{Engine: eng}}
}

// Name returns the module name
func (m *Module) Name() string { return m.b.Name }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix is the path the engine API is served under
func (m *Module) Prefix() string { return m.b.Prefix }

// MountRoutes installs the stub middleware on r and mounts the engine API under Prefix
func (m *Module) MountRoutes(r httpkit.Router) {
	m.ports.Engine.Install(r)
	httpkit.MountUnder(r, m.b.Prefix, m.b.Mw, m.ports.Engine.Mount)
}
