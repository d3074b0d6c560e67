package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/kv"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// Backend is the persisted-state wiring selected by STORE_DRIVER.
type Backend struct {
	Driver string
	KV     kv.Store
	// Pool is set for the postgres driver only.
	Pool    *pgxpool.Pool
	closers []func() error
}

// OpenBackend connects the configured KV driver.
func OpenBackend(ctx context.Context, cfg *Config) (*Backend, error) {
	b := &Backend{Driver: cfg.StoreDriver}
	switch cfg.StoreDriver {
	case DriverMemory:
		b.KV = kv.NewMemory()
	case DriverRedis:
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		b.KV = kv.NewRedis(client, cfg.RedisKeyPrefix)
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		conn := db.SQLFromPool(pool)
		b.Pool = pool
		b.closers = append(b.closers, conn.Close, func() error { pool.Close(); return nil })
		if err := b.useSQL(ctx, kv.NewSQL(conn)); err != nil {
			_ = b.Close()
			return nil, err
		}
	case DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, conn.Close)
		if err := b.useSQL(ctx, kv.NewSQL(conn)); err != nil {
			_ = b.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("app: unsupported store driver %q", cfg.StoreDriver)
	}
	return b, nil
}

func (b *Backend) useSQL(ctx context.Context, store *kv.SQL) error {
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	b.KV = store
	return nil
}

// Close releases every connection in reverse open order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// LoadCatalog returns the built-in catalog unless CATALOG_FILE names a YAML
// override.
func LoadCatalog(cfg *Config) (*rbac.Catalog, error) {
	if cfg == nil || cfg.CatalogFile == "" {
		return rbac.DefaultCatalog(), nil
	}
	f, err := os.Open(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("app: open catalog: %w", err)
	}
	defer f.Close()
	return rbac.LoadCatalogYAML(f)
}

// StoreOptions maps configuration onto Store options.
func StoreOptions(cfg *Config, extra ...rbac.StoreOption) []rbac.StoreOption {
	opts := append([]rbac.StoreOption(nil), extra...)
	if cfg != nil && cfg.StoreRepair {
		opts = append(opts, rbac.WithRepair())
	}
	return opts
}
