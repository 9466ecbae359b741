// Package boot provides runtime configuration and dependency wiring for provsync.
package boot

import (
	"os"
	"strings"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/config"
)

// RuntimeConfig holds parsed runtime settings (server address, tool roots, registry store).
// Values may be overridden by environment variables (e.g. HTTP_ADDR, XDG_CONFIG_HOME).
type RuntimeConfig struct {
	ServerAddr  string
	Paths       adapters.Paths
	StoreDriver string
	StorePath   string
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		ServerAddr: cfg.Server.Addr,
		Paths: adapters.Paths{
			Home:    cfg.Paths.Home,
			Project: cfg.Paths.Project,
		},
		StoreDriver: cfg.Store.Driver,
		StorePath:   cfg.Store.Path,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}

	if value := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); value != "" {
		ret.Paths.ConfigHome = value
	}

	if value := os.Getenv("PROVSYNC_STORE"); value != "" {
		ret.StorePath = value
	}
	return ret, nil
}
