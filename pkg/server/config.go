package server

import (
	"errors"
	"log/slog"
	"time"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultListLimit         = 50
	maxListLimit             = 500
)

type Config struct {
	Logger *slog.Logger
	Store  ReadStore

	// ShutdownTimeout bounds graceful shutdown on context cancellation.
	// Optional.
	ShutdownTimeout time.Duration
	// ReadHeaderTimeout guards against slow-header clients. Optional.
	ReadHeaderTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	return nil
}
