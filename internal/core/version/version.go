// Package version reports the build of the running binary
package version

import "runtime/debug"

// BuildInfo identifies a build
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// set with -ldflags "-X 'enginefeed/internal/core/version.version=v0.1.0' -X ...commit=abcd -X ...date=2026-01-02"
var (
	version = "dev"
	commit  = ""
	date    = "unknown"
)

// Info returns the build information for service. Without an ldflags commit
// the vcs revision stamped by the go tool is used, shortened to seven chars
func Info(service string) BuildInfo {
	c := commit
	if c == "" {
		c = vcsRevision(readBuildInfo)
	}
	return BuildInfo{Service: service, Version: version, Commit: c, Date: date}
}

// Short is the version and commit as one token, e.g. "dev+1a2b3c4"
func (b BuildInfo) Short() string {
	if b.Commit == "" || b.Commit == "unknown" {
		return b.Version
	}
	return b.Version + "+" + b.Commit
}

var readBuildInfo = debug.ReadBuildInfo

func vcsRevision(read func() (*debug.BuildInfo, bool)) string {
	if bi, ok := read(); ok && bi != nil {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return "unknown"
}
