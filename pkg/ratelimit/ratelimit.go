// Package ratelimit provides the rate gate injected into the broker REST
// executor. The gate throttles request rate, not concurrency: callers block
// in WaitToProceed until a slot is available.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate is the capability handed to REST callers. Implementations must be
// safe for concurrent use.
type Gate interface {
	// WaitToProceed blocks until the caller may issue a request, or the
	// context is cancelled.
	WaitToProceed(ctx context.Context) error
}

// LocalGate throttles within a single process using a token bucket.
type LocalGate struct {
	limiter *rate.Limiter
}

// NewLocalGate creates a gate allowing perSecond requests with the given burst.
func NewLocalGate(perSecond float64, burst int) *LocalGate {
	return &LocalGate{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// WaitToProceed blocks until a token is available.
func (g *LocalGate) WaitToProceed(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// NopGate never blocks. Used in tests and for order endpoints, which are
// exempt from the market-data quota.
type NopGate struct{}

// WaitToProceed returns immediately.
func (NopGate) WaitToProceed(ctx context.Context) error {
	return ctx.Err()
}
