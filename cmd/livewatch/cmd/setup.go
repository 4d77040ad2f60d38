package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/livesync"
	"github.com/dmitrymomot/livesync/core/channel"
	"github.com/dmitrymomot/livesync/core/config"
	"github.com/dmitrymomot/livesync/core/health"
	"github.com/dmitrymomot/livesync/core/query"
	"github.com/dmitrymomot/livesync/core/session"
	"github.com/dmitrymomot/livesync/integration/database/pg"
	dbredis "github.com/dmitrymomot/livesync/integration/database/redis"
	"github.com/dmitrymomot/livesync/integration/identity"
	"github.com/dmitrymomot/livesync/integration/pgfetch"
	"github.com/dmitrymomot/livesync/integration/postgrest"
	"github.com/dmitrymomot/livesync/integration/realtime/memory"
	"github.com/dmitrymomot/livesync/integration/realtime/pgnotify"
	rtredis "github.com/dmitrymomot/livesync/integration/realtime/redis"
	"github.com/dmitrymomot/livesync/integration/realtime/websocket"
)

var (
	errUnknownTransport = errors.New("unknown transport")
	errUnknownFetcher   = errors.New("unknown fetcher")
	errNoFetcher        = errors.New("no fetcher configured")
)

// appConfig is everything livewatch reads from the environment.
type appConfig struct {
	Livesync  livesync.Config
	Identity  identity.Config
	Websocket websocket.Config
	PostgREST postgrest.Config
	PGFetch   pgfetch.Config
	PGNotify  pgnotify.Config
	Postgres  pg.Config
	Redis     dbredis.Config
	RedisBus  rtredis.Config
}

// app holds the wired client and everything that must be closed with it.
type app struct {
	client   *livesync.Client
	provider *identity.TokenProvider
	pool     *pgxpool.Pool
	checks   []health.Check
	closers  []func()
}

func (a *app) Close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setup(ctx context.Context, transportName, fetcherName string, log *slog.Logger) (*app, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}

	provider, err := identity.NewFromConfig(ctx, cfg.Identity, identity.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	a := &app{provider: provider}
	accessToken := func() string {
		if a.client == nil {
			return ""
		}
		sess, ok := a.client.Session()
		if !ok {
			return ""
		}
		return sess.Token
	}

	transport, err := a.transport(ctx, transportName, cfg, accessToken, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	fetcher, err := a.fetcher(ctx, fetcherName, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.client, err = livesync.NewFromConfig(provider, transport, fetcher, cfg.Livesync, livesync.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) transport(ctx context.Context, name string, cfg appConfig, token func() string, log *slog.Logger) (channel.Transport, error) {
	switch name {
	case "websocket":
		t, err := websocket.New(cfg.Websocket, websocket.WithAccessToken(token), websocket.WithLogger(log))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = t.Close() })
		return t, nil
	case "pgnotify":
		pool, err := a.postgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pgnotify.New(pool, cfg.PGNotify, pgnotify.WithLogger(log))
	case "redis":
		client, err := dbredis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks = append(a.checks, health.Check{Name: "redis", Probe: dbredis.Healthcheck(client)})
		return rtredis.New(client, cfg.RedisBus, rtredis.WithLogger(log))
	case "memory":
		hub := memory.New(memory.WithLogger(log))
		a.closers = append(a.closers, func() { _ = hub.Close() })
		return hub, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownTransport, name)
}

func (a *app) fetcher(ctx context.Context, name string, cfg appConfig, log *slog.Logger) (livesync.Fetcher, error) {
	switch name {
	case "postgrest":
		return postgrest.New(cfg.PostgREST, postgrest.WithLogger(log))
	case "postgres":
		pool, err := a.postgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pgfetch.New(pool, cfg.PGFetch, pgfetch.WithLogger(log))
	case "none":
		return livesync.FetcherFunc(func(context.Context, session.Session, query.Key) (query.Rows, error) {
			return nil, errNoFetcher
		}), nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownFetcher, name)
}

// postgres connects once and shares the pool between transport and fetcher.
func (a *app) postgres(ctx context.Context, cfg appConfig) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	a.checks = append(a.checks, health.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})
	return pool, nil
}
