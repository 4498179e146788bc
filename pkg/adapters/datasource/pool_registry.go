package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/logging"
)

const (
	DefaultPoolMaxConns = 10

	adminPoolKey = "@admin"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("pool registry is closed")

// PoolRegistryConfig configures a PoolRegistry.
type PoolRegistryConfig struct {
	// Server is the configured database server. Bare database names resolve
	// against it; its Database field is ignored.
	Server  ConnConfig
	Options PoolOptions
}

// PoolRegistry caches one pool per database identifier for the life of the
// process. Identifiers are either bare database names on the configured
// server or full connection URIs, compared as exact strings.
type PoolRegistry struct {
	mu      sync.RWMutex
	pools   map[string]Pool
	flight  singleflight.Group
	server  ConnConfig
	dialect Dialect
	opts    PoolOptions
	closed  bool
	logger  *zap.Logger
}

// PoolRegistryStats reports cached pools.
type PoolRegistryStats struct {
	Total     int            `json:"total"`
	ByDialect map[string]int `json:"by_dialect"`
}

// NewPoolRegistry creates an empty registry for the configured server.
func NewPoolRegistry(cfg PoolRegistryConfig, logger *zap.Logger) (*PoolRegistry, error) {
	dialect, err := GetDialect(cfg.Server.Dialect)
	if err != nil {
		return nil, err
	}

	if cfg.Options.MaxConns <= 0 {
		cfg.Options.MaxConns = DefaultPoolMaxConns
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = dialect.DefaultPort()
	}

	return &PoolRegistry{
		pools:   make(map[string]Pool),
		server:  cfg.Server,
		dialect: dialect,
		opts:    cfg.Options,
		logger:  logger.Named("pools"),
	}, nil
}

// Dialect returns the configured server's dialect.
func (r *PoolRegistry) Dialect() Dialect {
	return r.dialect
}

// Server returns the configured server connection parameters.
func (r *PoolRegistry) Server() ConnConfig {
	return r.server
}

// Resolve turns an identifier into connection parameters without connecting.
func (r *PoolRegistry) Resolve(identifier string) (ConnConfig, Dialect, error) {
	if identifier == "" {
		return ConnConfig{}, nil, fmt.Errorf("%w: empty database name", apperrors.ErrInvalidIdentifier)
	}

	if IsURI(identifier) {
		cfg, err := ParseURI(identifier)
		if err != nil {
			return ConnConfig{}, nil, err
		}
		dialect, err := GetDialect(cfg.Dialect)
		if err != nil {
			return ConnConfig{}, nil, err
		}
		return cfg, dialect, nil
	}

	return r.server.WithDatabase(identifier), r.dialect, nil
}

// Get returns the pool for identifier, creating it on first use. Concurrent
// first calls for the same identifier share a single creation. A pool whose
// first ping fails is not cached, so the next call tries again.
func (r *PoolRegistry) Get(ctx context.Context, identifier string) (Pool, error) {
	return r.getOrCreate(ctx, identifier, func() (ConnConfig, Dialect, error) {
		return r.Resolve(identifier)
	})
}

// Admin returns the server-level pool used to create and drop databases.
func (r *PoolRegistry) Admin(ctx context.Context) (Pool, error) {
	return r.getOrCreate(ctx, adminPoolKey, func() (ConnConfig, Dialect, error) {
		return r.server.WithDatabase(r.dialect.MaintenanceDatabase()), r.dialect, nil
	})
}

func (r *PoolRegistry) getOrCreate(ctx context.Context, key string, resolve func() (ConnConfig, Dialect, error)) (Pool, error) {
	// Fast path with read lock
	r.mu.RLock()
	pool, exists := r.pools[key]
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return nil, ErrRegistryClosed
	}
	if exists {
		return pool, nil
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		// Double-check: the previous flight may have stored it
		r.mu.RLock()
		pool, exists := r.pools[key]
		r.mu.RUnlock()
		if exists {
			return pool, nil
		}

		cfg, dialect, err := resolve()
		if err != nil {
			return nil, err
		}

		// Never let one caller's cancellation fail the shared creation.
		pool, err = dialect.Open(context.WithoutCancel(ctx), cfg, r.opts)
		if err != nil {
			target := logging.SanitizeConnectionString(key)
			r.logger.Error("Failed to open pool",
				zap.String("target", target),
				zap.String("dialect", dialect.Name()),
				zap.String("error", logging.SanitizeError(err)),
			)
			var connErr *apperrors.ConnectivityError
			if errors.As(err, &connErr) {
				return nil, err
			}
			return nil, &apperrors.ConnectivityError{Target: target, Err: err}
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = pool.Close()
			return nil, ErrRegistryClosed
		}
		r.pools[key] = pool

		r.logger.Info("Created pool",
			zap.String("target", logging.SanitizeConnectionString(key)),
			zap.String("dialect", dialect.Name()),
			zap.String("database", cfg.Database),
			zap.Int("max_conns", r.opts.MaxConns),
		)
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Pool), nil
}

// Evict closes and forgets the pool for identifier. It is only used right
// before the underlying database is dropped.
func (r *PoolRegistry) Evict(identifier string) {
	r.mu.Lock()
	pool, exists := r.pools[identifier]
	delete(r.pools, identifier)
	r.mu.Unlock()

	if !exists {
		return
	}
	if err := pool.Close(); err != nil {
		r.logger.Warn("Failed to close evicted pool",
			zap.String("target", logging.SanitizeConnectionString(identifier)),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
}

// Stats reports the cached pools.
func (r *PoolRegistry) Stats() PoolRegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := PoolRegistryStats{ByDialect: make(map[string]int)}
	for _, pool := range r.pools {
		stats.Total++
		stats.ByDialect[pool.Config().Dialect]++
	}
	return stats
}

// Close closes every pool. Subsequent Get calls fail.
func (r *PoolRegistry) Close() error {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]Pool)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for key, pool := range pools {
		if err := pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", logging.SanitizeConnectionString(key), err))
		}
	}
	return errors.Join(errs...)
}
