// Package logger builds the *slog.Logger every component in this runtime
// takes as an injected dependency, never a package-global.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// config accumulates the options New is called with.
type config struct {
	level     slog.Level
	json      bool
	output    io.Writer
	component string
}

// Option configures a logger built with New.
type Option func(*config)

// WithDevelopment configures a text-formatted, debug-level logger writing to
// stdout, tagged with the given service/component name — the profile
// cmd/controller/main.go runs under.
func WithDevelopment(service string) Option {
	return func(c *config) {
		c.json = false
		c.level = slog.LevelDebug
		c.component = service
	}
}

// New builds an *slog.Logger from the given options. With no options, it
// produces a text-formatted, info-level logger writing to stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo, output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}

	hOpts := &slog.HandlerOptions{Level: c.level}
	var h slog.Handler
	if c.json {
		h = slog.NewJSONHandler(c.output, hOpts)
	} else {
		h = slog.NewTextHandler(c.output, hOpts)
	}

	log := slog.New(h)
	if c.component != "" {
		log = log.With(slog.String("component", c.component))
	}
	return log
}

// Error wraps err under the conventional "error" key, used throughout
// datapath and cmd for failure logging.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
