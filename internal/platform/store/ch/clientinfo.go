package ch

import (
	"os"
	"runtime"
	"strings"

	"enginefeed/internal/core/version"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// BuildClientInfo describes this process to the server, visible in system.query_log.
// role is the binary, e.g. "enginefeed"; an empty v uses the build's version
func BuildClientInfo(role, v string) clickhouse.ClientInfo {
	host, _ := os.Hostname()
	if v == "" {
		v = version.Info(role).Short()
	}

	type kv = struct{ Name, Version string }
	return clickhouse.ClientInfo{Products: []kv{
		{Name: "enginefeed", Version: strings.TrimSpace(v)},
		{Name: "role", Version: strings.TrimSpace(role)},
		{Name: "go", Version: runtime.Version()},
		{Name: "host", Version: strings.TrimSpace(host)},
	}}
}
