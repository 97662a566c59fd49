// Package redis connects to Redis with retry and exposes a readiness probe.
//
// The reminder service uses Redis only as the shared backend for metric
// counters (see pkg/metrics.RedisSink); the client returned by Connect is a
// plain *redis.Client from github.com/redis/go-redis/v9.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package redis
