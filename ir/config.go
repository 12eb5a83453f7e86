package ir

import (
	"go.uber.org/zap"

	"github.com/wippyai/ir-runtime/native"
	"github.com/wippyai/ir-runtime/native/golib"
)

// Config configures a Context. A nil *Config selects the defaults.
type Config struct {
	// Library is the native library backing the context. Defaults to
	// golib.Default().
	Library native.Library

	// Logger receives debug logs for this context. Defaults to Logger().
	Logger *zap.Logger

	// Name labels the context arena in logs and errors. Defaults to
	// "context".
	Name string
}

func (c *Config) withDefaults() Config {
	var cfg Config
	if c != nil {
		cfg = *c
	}
	if cfg.Library == nil {
		cfg.Library = golib.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = Logger()
	}
	if cfg.Name == "" {
		cfg.Name = "context"
	}
	return cfg
}
