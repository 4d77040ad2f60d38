// Package health runs readiness probes against the backends a client
// depends on.
//
// Probes follow the func(context.Context) error signature returned by
// pg.Healthcheck and redis.Healthcheck:
//
//	err := health.Readiness(ctx, log,
//		health.Check{Name: "postgres", Probe: pg.Healthcheck(pool)},
//		health.Check{Name: "redis", Probe: redis.Healthcheck(client)},
//	)
//
// Readiness runs every probe, even after a failure, and joins the failures.
package health
