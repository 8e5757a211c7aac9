package database

import (
	"context"
	"time"
)

const defaultPingTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckHealth pings the database, giving up after two seconds.
func CheckHealth(ctx context.Context, db Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	return db.Ping(ctx)
}

// ReadinessCheck adapts CheckHealth to the func form the readiness endpoint expects.
func ReadinessCheck(db Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return CheckHealth(ctx, db)
	}
}
