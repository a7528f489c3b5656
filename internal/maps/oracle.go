// Package maps estimates door-to-door driving time between two coordinates.
//
// A Router talks to one routing backend and reports raw seconds. The Oracle
// wraps a Router with the scheduling contract: unknown coordinates cost
// nothing, an unroutable pair is reported as UnroutableMinutes, and a failed
// call degrades to the configured FailPolicy instead of returning an error.
package maps

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"homecare/internal/types"
)

const (
	// UnroutableMinutes is larger than any realistic gap in a day's schedule,
	// so an unroutable pair always reads as infeasible downstream.
	UnroutableMinutes = 999

	DefaultFallbackMinutes = 30
	DefaultTimeout         = 3 * time.Second
)

// ErrNoRoute is returned by a Router when the backend answered but found no route.
var ErrNoRoute = errors.New("no route found")

type FailPolicy string

const (
	// FailOpen uses the fallback minutes when the backend cannot be reached.
	FailOpen FailPolicy = "open"
	// FailClosed treats an unreachable backend like an unroutable pair.
	FailClosed FailPolicy = "closed"
)

// Router is a single routing backend.
type Router interface {
	RouteSeconds(ctx context.Context, origin, dest types.Point) (float64, error)
}

// Estimator is the travel-time contract consumed by the scheduling modules.
type Estimator interface {
	EstimateTravelMinutes(ctx context.Context, origin, dest types.Point) int
}

type OracleConfig struct {
	Timeout         time.Duration
	FallbackMinutes int
	Policy          FailPolicy
}

type Oracle struct {
	router Router
	cfg    OracleConfig
	log    zerolog.Logger
}

func NewOracle(router Router, cfg OracleConfig, log zerolog.Logger) *Oracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FallbackMinutes <= 0 {
		cfg.FallbackMinutes = DefaultFallbackMinutes
	}
	if cfg.Policy == "" {
		cfg.Policy = FailOpen
	}
	return &Oracle{router: router, cfg: cfg, log: log.With().Str("component", "oracle").Logger()}
}

// EstimateTravelMinutes makes exactly one backend call per invocation and never
// blocks longer than the configured timeout.
func (o *Oracle) EstimateTravelMinutes(ctx context.Context, origin, dest types.Point) int {
	if !origin.HasCoordinates() || !dest.HasCoordinates() {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	secs, err := o.router.RouteSeconds(ctx, origin, dest)
	if errors.Is(err, ErrNoRoute) {
		return UnroutableMinutes
	}
	if err != nil {
		o.log.Warn().Err(err).
			Str("policy", string(o.cfg.Policy)).
			Float64("origin_lat", origin.Lat).Float64("origin_lng", origin.Lng).
			Float64("dest_lat", dest.Lat).Float64("dest_lng", dest.Lng).
			Msg("travel oracle unavailable")
		if o.cfg.Policy == FailClosed {
			return UnroutableMinutes
		}
		return o.cfg.FallbackMinutes
	}
	if secs <= 0 {
		return 0
	}
	return int(math.Ceil(secs / 60))
}
