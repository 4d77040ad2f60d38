// Package redis creates go-redis clients with connection verification.
//
// Connect parses Config.ConnectionURL (redis:// or rediss://), then pings the
// server with exponential backoff until it answers or the retry budget is
// spent. Healthcheck returns a probe for readiness checks.
//
//	client, err := redis.Connect(ctx, redis.Config{ConnectionURL: "redis://localhost:6379/0"})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
