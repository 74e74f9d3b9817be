// Package config defines the OpenFlow controller's environment-driven
// settings, loaded with core/config's caarlos0/env-backed loader — the same
// typed-struct pattern used throughout the ambient stack.
package config

import (
	"strconv"
	"time"
)

// Config holds the listener and request-timeout settings spec.md §6 names:
// ofp_listen_host, ofp_tcp_listen_port, request_timeout_default, plus the
// bind address for the read-only operator HTTP surface, an addition this
// runtime needs but the original gflags had no slot for.
type Config struct {
	// ListenHost is the interface the OpenFlow listener binds; empty means
	// all interfaces, matching the original's ofp_listen_host default.
	ListenHost string `env:"OFP_LISTEN_HOST" envDefault:""`

	// ListenPort is the OpenFlow TCP listen port (default 6633, IANA's
	// assigned port for OpenFlow before 6653 was registered).
	ListenPort int `env:"OFP_TCP_LISTEN_PORT" envDefault:"6633"`

	// RequestTimeout is the configured default reply timeout (1s). It is
	// loaded but not read anywhere in this tree: SendRequest and
	// SendStatsRequest take their timeout as an argument.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT_DEFAULT" envDefault:"1s"`

	// AdminAddr binds the operator surface (/healthz, /admin/dpset,
	// /admin/events).
	AdminAddr string `env:"ADMIN_ADDR" envDefault:":8080"`
}

// ListenAddr returns the host:port pair the OpenFlow TCP listener binds.
func (c Config) ListenAddr() string {
	return c.ListenHost + ":" + strconv.Itoa(c.ListenPort)
}
