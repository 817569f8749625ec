package pg

import (
	"context"
	"errors"
	"time"
)

// Pinger is satisfied by *pgxpool.Pool and *pgx.Conn.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthcheckTimeout bounds a single probe when the caller's context has no
// deadline of its own.
const healthcheckTimeout = 2 * time.Second

// Healthcheck returns a readiness probe for the database.
func Healthcheck(db Pinger) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, healthcheckTimeout)
			defer cancel()
		}
		if err := db.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
