package engine

import (
	"enginefeed/internal/platform/config"
)

// OptionsFromConfig reads ENGINE_* settings; unset keys fall back to the client defaults
func OptionsFromConfig(c config.Conf) Options {
	ec := c.Prefix("ENGINE_")
	return Options{
		Scheme:         ec.MayEnum("SCHEME", defaultScheme, "http", "https"),
		Host:           ec.MayString("HOST", defaultHost),
		Port:           ec.MayPort("PORT", defaultPort),
		BasePath:       ec.MayString("BASE_PATH", defaultBasePath),
		PageSize:       ec.MayInt("PAGE_SIZE", defaultPageSize),
		Timeout:        ec.MayDuration("TIMEOUT", defaultTimeout),
		ConnectTimeout: ec.MayDuration("CONNECT_TIMEOUT", defaultConnectTimeout),
		UserAgent:      ec.MayString("USER_AGENT", defaultUA),
	}
}

// PoolSizeFromConfig reads ENGINE_POOL_SIZE
func PoolSizeFromConfig(c config.Conf) int {
	return c.Prefix("ENGINE_").MayInt("POOL_SIZE", defaultPoolSize)
}
