// Package module defines the minimal contract for a modkit module
package module

import (
	phttp "enginefeed/internal/platform/net/http"
)

// Module defines the minimal contract used by modkit.
// Worker modules without routes implement MountRoutes as a no-op
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
