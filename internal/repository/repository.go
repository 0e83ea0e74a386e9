package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-catalog/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrUnavailable indicates the database could not be reached in time.
	// Callers may retry; no partial write was committed.
	ErrUnavailable = errors.New("repository: unavailable")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Users   *UsersRepository
	Movies  *MoviesRepository
	Reviews *ReviewsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return newRepository(st.Pool(), st.QueryDeadline())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool, queryTimeout time.Duration) *Repository {
	return newRepository(pool, store.Deadline(queryTimeout))
}

func newRepository(pool *pgxpool.Pool, deadline store.Deadline) *Repository {
	b := base{pool: pool, deadline: deadline}
	return &Repository{
		Users:   &UsersRepository{base: b},
		Movies:  &MoviesRepository{base: b},
		Reviews: &ReviewsRepository{base: b},
	}
}

type base struct {
	pool     *pgxpool.Pool
	deadline store.Deadline
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return b.deadline.Bound(ctx)
}

// inTx runs fn in one transaction bounded by the query timeout. Any error
// rolls the transaction back.
func (b base) inTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return translateErr(pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	}))
}

// translateErr maps driver errors onto the repository sentinels. Errors that
// already carry a sentinel pass through.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
