package internal

import (
	"io"
	"log/slog"

	"github.com/starford/notedex/internal/index"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	logger   *slog.Logger
	registry *index.Registry
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the JSON stdout logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithRegistry supplies the pool registry. The caller keeps ownership and
// must close it; otherwise Run creates one from the index configuration.
func WithRegistry(r *index.Registry) Option {
	return func(a *application) {
		a.registry = r
	}
}

// setup resolves the logger and registry; logs go to w unless a logger was
// supplied. The returned func releases what setup created.
func (a *application) setup(w io.Writer) (*slog.Logger, *index.Registry, func()) {
	logger := a.logger
	if logger == nil {
		logger = NewLogger(w, a.config.App.LogLevel)
		slog.SetDefault(logger)
	}
	if a.registry != nil {
		return logger, a.registry, func() {}
	}
	opts := append(a.config.Index.RegistryOptions(), index.WithLogger(logger))
	reg := index.NewRegistry(opts...)
	return logger, reg, func() {
		if err := reg.Close(); err != nil {
			logger.Warn("close index registry", slog.String("error", err.Error()))
		}
	}
}
