package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/notedex/internal/apperr"
)

const (
	// DefaultMaxConns bounds simultaneous connections per index.
	DefaultMaxConns    = 5
	defaultBusyTimeout = 5 * time.Second
)

type registryConfig struct {
	driver      string
	maxConns    int
	busyTimeout time.Duration
	logger      *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

// WithDriver selects the database/sql driver: DriverModernc or DriverMattn.
func WithDriver(name string) RegistryOption {
	return func(c *registryConfig) {
		if name != "" {
			c.driver = name
		}
	}
}

// WithMaxConns sets the connection bound of every pool opened by the registry.
func WithMaxConns(n int) RegistryOption {
	return func(c *registryConfig) {
		if n > 0 {
			c.maxConns = n
		}
	}
}

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(d time.Duration) RegistryOption {
	return func(c *registryConfig) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// WithLogger sets the logger handed to every opened index.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(c *registryConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Registry maps index paths to open pools. At most one pool exists per
// path for the lifetime of the registry.
type Registry struct {
	cfg registryConfig

	mu     sync.Mutex
	pools  map[string]*DB
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := registryConfig{
		driver:      DriverModernc,
		maxConns:    DefaultMaxConns,
		busyTimeout: defaultBusyTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{cfg: cfg, pools: make(map[string]*DB)}
}

// Acquire returns the pool for path, opening (and creating) the store on
// first use. Failures are reported as apperr.ErrConnection.
func (r *Registry) Acquire(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, apperr.Wrap(apperr.ErrConnection, "index: acquire", path, errors.New("empty index path"))
	}
	key := filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, apperr.Wrap(apperr.ErrConnection, "index: acquire", key, errors.New("registry closed"))
	}
	if db, ok := r.pools[key]; ok {
		return db, nil
	}

	db, err := open(ctx, key, r.cfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConnection, "index: acquire", key, err)
	}
	r.pools[key] = db
	r.cfg.logger.Info("index: opened",
		slog.String("path", key),
		slog.String("driver", r.cfg.driver),
		slog.Int("max_conns", r.cfg.maxConns))
	return db, nil
}

// Len returns the number of open pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// Close closes every pool. Acquire fails afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	var errs []error
	for key, db := range r.pools {
		if err := db.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("index: close %s: %w", key, err))
		}
		delete(r.pools, key)
	}
	return errors.Join(errs...)
}
