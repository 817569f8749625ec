package redis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("redis: invalid connection url")
	ErrRedisNotReady                = errors.New("redis: not ready before connect timeout")
	ErrHealthcheckFailed            = errors.New("redis: ping failed")
)
