// Package httpkit holds route mounting helpers shared by modules
package httpkit

import (
	"net/http"

	phttp "enginefeed/internal/platform/net/http"
)

// Router is the platform router seam
type Router = phttp.Router

// MountUnder mounts a subrouter at prefix and applies per-module middlewares.
// An empty or "/" prefix mounts in a group on r itself
func MountUnder(r Router, prefix string, mw []func(http.Handler) http.Handler, mount func(Router)) {
	body := func(sub Router) {
		if len(mw) > 0 {
			sub.Use(mw...)
		}
		mount(sub)
	}
	if prefix == "" || prefix == "/" {
		r.Group(body)
		return
	}
	r.Route(prefix, body)
}
