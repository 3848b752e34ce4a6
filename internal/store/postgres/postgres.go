// Package postgres implements the roster person store on PostgreSQL.
//
// Each roster record is reconciled inside its own transaction. The person row
// is locked with SELECT ... FOR UPDATE so concurrent workers (or a second
// deployment) never interleave mutations for the same document.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/rostersync/internal/config"
	"github.com/JonMunkholm/rostersync/internal/roster"
)

// DefaultRoleCacheTTL is used when New is given no TTL.
const DefaultRoleCacheTTL = 5 * time.Minute

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Connect opens a connection pool configured from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("connected to database",
		"database", poolConfig.ConnConfig.Database,
		"host", poolConfig.ConnConfig.Host,
		"max_conns", poolConfig.MaxConns,
	)
	return pool, nil
}

// Store is a roster.Store backed by a pgx pool.
type Store struct {
	pool  *pgxpool.Pool
	roles *roleCache
}

var _ roster.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRoleCacheTTL sets how long role lookups are cached, including misses.
func WithRoleCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.roles = newRoleCache(s.loadRoleID, ttl)
		}
	}
}

// New creates a Store using pool. The caller owns the pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	s.roles = newRoleCache(s.loadRoleID, DefaultRoleCacheTTL)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindRoleIDByName returns the id of the named role, or nil if it does not exist.
// Results are cached; concurrent misses for the same name share one query.
func (s *Store) FindRoleIDByName(ctx context.Context, name string) (*int64, error) {
	return s.roles.get(ctx, name)
}

func (s *Store) loadRoleID(ctx context.Context, name string) (*int64, error) {
	return findRoleID(ctx, s.pool, name)
}

// InTx runs fn in a transaction that commits only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx roster.PersonTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&personTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
