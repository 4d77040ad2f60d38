// Package pg connects to PostgreSQL through a pgx connection pool.
//
// Connect parses Config, opens the pool and pings it, retrying with
// exponential backoff so that a client started alongside its database does
// not fail on the first refused connection. Healthcheck returns a probe for
// readiness checks.
//
//	pool, err := pg.Connect(ctx, pg.Config{ConnectionString: os.Getenv("PG_CONN_URL")})
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
// WithTx and TxFromContext carry a transaction through a context so that
// query helpers join an enclosing transaction instead of opening their own.
package pg
