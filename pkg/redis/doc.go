// Package redis connects to Redis with go-redis/v9.
//
// Connect parses a redis:// URL from Config and retries until the server
// answers a ping or ConnectTimeout elapses. Healthcheck returns a closure
// suitable for a readiness endpoint. The returned client backs the delivery
// history, the digest locker, the in-app channel and the asynq worker.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
