// README: Redis-backed route cache shared by every API instance.
package maps

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"homecare/internal/types"
)

const (
	routeKeyPrefix  = "oracle:route:"
	noRouteValue    = "none"
	DefaultCacheTTL = 6 * time.Hour
)

// CachedRouter remembers routed durations and known-unroutable pairs.
// Transport failures are never cached, so the oracle's fail policy still
// applies to them.
type CachedRouter struct {
	next  Router
	redis *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedRouter(next Router, client *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedRouter {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRouter{next: next, redis: client, ttl: ttl, log: log.With().Str("component", "route_cache").Logger()}
}

func (c *CachedRouter) RouteSeconds(ctx context.Context, origin, dest types.Point) (float64, error) {
	key := routeKeyPrefix + pairKey(origin, dest)

	val, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == noRouteValue {
			return 0, ErrNoRoute
		}
		if secs, perr := strconv.ParseFloat(val, 64); perr == nil {
			return secs, nil
		}
	case errors.Is(err, redis.Nil):
	default:
		c.log.Debug().Err(err).Msg("route cache read failed")
	}

	secs, err := c.next.RouteSeconds(ctx, origin, dest)
	switch {
	case errors.Is(err, ErrNoRoute):
		c.store(ctx, key, noRouteValue)
	case err == nil:
		c.store(ctx, key, strconv.FormatFloat(secs, 'f', -1, 64))
	}
	return secs, err
}

func (c *CachedRouter) store(ctx context.Context, key, val string) {
	if err := c.redis.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Msg("route cache write failed")
	}
}
