package enginetest

import (
	"enginefeed/internal/platform/config"
)

// Options configures the stub server
type Options struct {
	// Addr is the listen address for the standalone server
	Addr string
	// BasePath mounts the API, normalized like the client's
	BasePath     string
	MaxBodyBytes int64
	CORSOrigins  []string
	Profiler     bool
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if o.BasePath == "" {
		o.BasePath = "/engine/v2"
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 16 << 20
	}
	return o
}

// FromConfig reads STUB_* settings
func FromConfig(c config.Conf) Options {
	sc := c.Prefix("STUB_")
	return Options{
		Addr:         sc.MayString("ADDR", ":8080"),
		BasePath:     sc.MayString("BASE_PATH", "/engine/v2"),
		MaxBodyBytes: int64(sc.MayInt("MAX_BODY_BYTES", 16<<20)),
		CORSOrigins:  sc.MayCSV("CORS_ORIGINS", nil),
		Profiler:     sc.MayBool("PPROF", false),
	}
}
