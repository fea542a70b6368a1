// Package config reads application settings from environment variables
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"enginefeed/internal/platform/logger"
	pstrings "enginefeed/internal/platform/strings"
)

// Conf is a namespaced view over environment variables, e.g. "ENGINE_" or "FEED_".
// New() is the root; Prefix scopes a module
type Conf struct{ prefix string }

// New creates a root Conf (no prefix)
func New() Conf { return Conf{} }

// Prefix creates a child Conf with an additional prefix, e.g. cfg.Prefix("ENGINE_")
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

// key composes the fully-qualified env var name
func (c Conf) key(k string) string { return c.prefix + k }

// raw is the trimmed value of key; blank counts as unset
func (c Conf) raw(key string) string { return strings.TrimSpace(os.Getenv(c.key(key))) }

// fallback logs a value that could not be parsed and hands back def
func fallback[T any](c Conf, key, kind, value string, def T) T {
	logger.Get().Warn().
		Str("key", c.key(key)).
		Str("value", value).
		Interface("default", def).
		Msgf("invalid %s; using default", kind)
	return def
}

// parse reads key with fn, returning def when unset or unparsable
func parse[T any](c Conf, key, kind string, def T, fn func(string) (T, error)) T {
	s := c.raw(key)
	if s == "" {
		return def
	}
	v, err := fn(s)
	if err != nil {
		return fallback(c, key, kind, s, def)
	}
	return v
}

// MayString returns the value or def if missing/empty
func (c Conf) MayString(key, def string) string {
	if v := c.raw(key); v != "" {
		return v
	}
	return def
}

// MayInt returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayInt(key string, def int) int {
	return parse(c, key, "int", def, strconv.Atoi)
}

// MayFloat64 returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayFloat64(key string, def float64) float64 {
	return parse(c, key, "float", def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// MayBool returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayBool(key string, def bool) bool {
	return parse(c, key, "bool", def, strconv.ParseBool)
}

// MayDuration accepts Go durations like 250ms or 10s
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	return parse(c, key, "duration", def, time.ParseDuration)
}

// MayPort returns a TCP port in 1..65535, or def
func (c Conf) MayPort(key string, def int) int {
	p := c.MayInt(key, def)
	if p < 1 || p > 65535 {
		return fallback(c, key, "port", strconv.Itoa(p), def)
	}
	return p
}

// MayCSV splits a comma separated value, dropping blank items; def if nothing is left
func (c Conf) MayCSV(key string, def []string) []string {
	if out := pstrings.SplitCSV(c.raw(key)); len(out) > 0 {
		return out
	}
	return def
}

// MayEnum returns the value if it is one of allowed (case-insensitive), def if unset.
// Any other value panics: a typo in a mode switch should stop the binary
func (c Conf) MayEnum(key, def string, allowed ...string) string {
	v := c.MayString(key, def)
	if v == "" {
		return v
	}
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return v
		}
	}
	logger.Get().Panic().Str("key", c.key(key)).Str("value", v).Strs("allowed", allowed).Msg("invalid enum value")
	return ""
}
