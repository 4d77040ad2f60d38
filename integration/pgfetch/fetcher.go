package pgfetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/livesync/core/logger"
	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/core/session"
	"github.com/dmitrymomot/livesync/integration/database/pg"
)

// Config holds fetcher settings loaded from the environment.
type Config struct {
	Schema string `env:"PGFETCH_SCHEMA" envDefault:"public"`
	// Role is the database role assumed for each query. Empty keeps the
	// connection's role.
	Role string `env:"PGFETCH_ROLE"`
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the fetcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fetcher reads rows for query keys from a pgx pool.
type Fetcher struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *slog.Logger
}

// New creates a fetcher over pool.
func New(pool *pgxpool.Pool, cfg Config, opts ...Option) (*Fetcher, error) {
	if pool == nil {
		return nil, ErrPoolNil
	}
	f := &Fetcher{
		pool:   pool,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch loads the rows for key as sess.
func (f *Fetcher) Fetch(ctx context.Context, sess session.Session, key query.Key) (query.Rows, error) {
	sql, args, err := BuildQuery(f.cfg.Schema, key)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var out query.Rows
	run := func(tx pgx.Tx) error {
		if err := applyIdentity(ctx, tx, sess, f.cfg.Role); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, sql, append([]any{pgx.QueryExecModeSimpleProtocol}, args...)...)
		if err != nil {
			return err
		}
		maps, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return err
		}
		out = query.Rows(maps)
		return nil
	}

	if tx, ok := pg.TxFromContext(ctx); ok {
		err = pgx.BeginFunc(ctx, tx, run)
	} else {
		err = pgx.BeginTxFunc(ctx, f.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, run)
	}
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}

	f.logger.DebugContext(ctx, "pgfetch query",
		logger.Component("pgfetch"),
		logger.QueryKey(key.String()),
		logger.Count("rows", len(out)),
		logger.Duration(time.Since(start)),
	)
	if out == nil {
		out = query.Rows{}
	}
	return out, nil
}

// applyIdentity publishes the session claims as transaction-local settings.
func applyIdentity(ctx context.Context, tx pgx.Tx, sess session.Session, role string) error {
	claims, err := json.Marshal(map[string]string{
		"sub":   sess.Claims.Subject,
		"role":  sess.Role(),
		"email": sess.Claims.Email,
	})
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`SELECT set_config('request.jwt.claims', $1, true),
		        set_config('request.jwt.claim.sub', $2, true),
		        set_config('request.jwt.claim.role', $3, true)`,
		string(claims), sess.Claims.Subject, sess.Role(),
	)
	if err != nil {
		return err
	}
	if role != "" {
		if _, err := tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{role}.Sanitize()); err != nil {
			return err
		}
	}
	return nil
}
