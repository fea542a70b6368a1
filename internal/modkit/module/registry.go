package module

import "sync"

// registry holds port sets by module name for cross wiring in main
type registry struct {
	mu    sync.RWMutex
	ports map[string]any
}

var global = &registry{ports: map[string]any{}}

// Register stores ports under name, replacing any earlier set
func Register(name string, ports any) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.ports[name] = ports
}

// PortsAs returns the set registered under name if it is a T
func PortsAs[T any](name string) (T, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	v, ok := global.ports[name].(T)
	return v, ok
}

// Reset empties the registry between tests
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	clear(global.ports)
}
