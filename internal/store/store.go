// Package store owns the PostgreSQL pool and the deadline policy every
// repository call runs under.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/config"
)

const applicationName = "movie-catalog"

// Options controls pool sizing and the per-call deadline.
type Options struct {
	MaxConns               int32
	MinConns               int32
	MaxConnIdleTime        time.Duration
	MaxConnLifetime        time.Duration
	ConnTimeout            time.Duration
	StatementCacheCapacity int
	// QueryTimeout bounds every repository call on the client and is sent as
	// statement_timeout so the server abandons the same work. Zero disables both.
	QueryTimeout time.Duration
	Logger       zerolog.Logger
}

// OptionsFromConfig maps the DB_* settings onto pool options.
func OptionsFromConfig(cfg config.Config, logger zerolog.Logger) Options {
	return Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        seconds(cfg.DBMaxIdleSecs),
		MaxConnLifetime:        seconds(cfg.DBMaxLifeSecs),
		ConnTimeout:            seconds(cfg.DBConnTimeoutSecs),
		StatementCacheCapacity: cfg.DBStatementCache,
		QueryTimeout:           seconds(cfg.DBQueryTimeoutSecs),
		Logger:                 logger,
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Deadline is the bound applied to a unit of database work.
type Deadline time.Duration

// Bound derives a context that expires after d. A non-positive d returns ctx
// unchanged with a no-op cancel.
func (d Deadline) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(d))
}

// Store holds the pgx pool shared by the credential store and the review ledger.
type Store struct {
	pool    *pgxpool.Pool
	logger  zerolog.Logger
	query   Deadline
	connect Deadline
}

// New opens the pool and pings it within ConnTimeout.
func New(ctx context.Context, dbURL string, opts Options) (*Store, error) {
	cfg, err := poolConfig(dbURL, opts)
	if err != nil {
		return nil, err
	}

	s := &Store{
		logger:  opts.Logger.With().Str("component", "store").Logger(),
		query:   Deadline(opts.QueryTimeout),
		connect: Deadline(opts.ConnTimeout),
	}

	connCtx, cancel := s.connect.Bound(ctx)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s.pool = pool

	s.logger.Info().
		Str("host", cfg.ConnConfig.Host).
		Str("database", cfg.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Dur("query_timeout", opts.QueryTimeout).
		Msg("database pool ready")
	return s, nil
}

// poolConfig parses dbURL and overlays opts. Zero values keep pgx defaults.
func poolConfig(dbURL string, opts Options) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.ConnTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnTimeout
	}

	conn := cfg.ConnConfig
	if opts.StatementCacheCapacity > 0 {
		conn.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
		conn.StatementCacheCapacity = opts.StatementCacheCapacity
	} else if opts.StatementCacheCapacity == 0 {
		conn.DefaultQueryExecMode = pgx.QueryExecModeExec
	}

	if _, ok := conn.RuntimeParams["application_name"]; !ok {
		conn.RuntimeParams["application_name"] = applicationName
	}
	if opts.QueryTimeout > 0 {
		conn.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.QueryTimeout.Milliseconds(), 10)
	}
	return cfg, nil
}

// Close releases the pool. Safe on a nil Store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.logger.Info().Msg("closing database pool")
	s.pool.Close()
}

// HealthCheck pings the database within the connect deadline.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}
	ctx, cancel := s.connect.Bound(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Pool exposes the pgx pool to repositories and migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// QueryDeadline is the bound repositories apply to each call.
func (s *Store) QueryDeadline() Deadline {
	return s.query
}

// Stats reports pool statistics, or nil before the pool is open.
func (s *Store) Stats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}
