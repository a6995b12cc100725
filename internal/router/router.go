// Package router decides which storage backend serves a request while the
// migration traffic ramp is in flight.
package router

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/cespare/xxhash/v2"

	"cutover/internal/domain"
	"cutover/internal/flagcache"
)

// Router maps a request, optionally keyed by a stable caller identity, to a
// backend. Decisions read the live configuration snapshot on every call, so
// percentage changes deployed by the rollout controller take effect within one
// cache TTL.
type Router struct {
	flags  *flagcache.Cache
	logger *slog.Logger

	// intn draws the routing value for anonymous requests. Overridable in
	// tests; identity-keyed routing never uses it.
	intn func(n int) int
}

// New creates a Router reading flags from the given cache.
func New(flags *flagcache.Cache, logger *slog.Logger) *Router {
	return &Router{
		flags:  flags,
		logger: logger,
		intn:   rand.Intn,
	}
}

// Route returns the backend that should serve the request. An empty identity
// routes by uniform random draw; a non-empty identity routes by a stable hash
// bucket, so the same caller sees the same backend for as long as the
// configured percentage is unchanged (sticky routing).
//
// Fail-safe: queries disabled, percentage 0, or any internal inconsistency all
// resolve to the source backend.
func (r *Router) Route(ctx context.Context, identity string) domain.Backend {
	snap := r.flags.Get(ctx)

	pct := snap.EffectivePercentage()
	switch pct {
	case 0:
		return domain.BackendSource
	case 100:
		return domain.BackendTarget
	}

	routingValue := r.routingValue(identity)
	if routingValue < pct {
		return domain.BackendTarget
	}
	return domain.BackendSource
}

// routingValue maps an identity to a stable bucket in [0,99], or draws a
// uniform random bucket when no identity is supplied.
func (r *Router) routingValue(identity string) int {
	if identity == "" {
		return r.intn(100)
	}
	return int(xxhash.Sum64String(identity) % 100)
}
