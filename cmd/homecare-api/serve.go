package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"homecare/internal/config"
	httptransport "homecare/internal/http"
	"homecare/internal/infra"
	"homecare/internal/maps"
	"homecare/internal/modules/appointment"
	"homecare/internal/modules/booking"
	"homecare/internal/modules/doctor"
	"homecare/internal/modules/feasibility"
	"homecare/internal/modules/location"
	"homecare/internal/modules/matching"
	"homecare/internal/types"
)

func runServer(ctx context.Context, cfg config.Config) error {
	log := infra.NewLogger(cfg.Env, cfg.LogLevel)

	db, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns, cfg.DB.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis is optional: without it locks are process-local and routes uncached.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	router, err := newRouter(cfg.Oracle, redisClient, log)
	if err != nil {
		return err
	}
	oracle := maps.NewOracle(router, maps.OracleConfig{
		Timeout:         cfg.Oracle.Timeout,
		FallbackMinutes: cfg.Oracle.FallbackMinutes,
		Policy:          maps.FailPolicy(cfg.Oracle.FailPolicy),
	}, log)

	var locker booking.Locker = booking.NewLocalLocker(cfg.Booking.LockWait)
	if redisClient != nil {
		locker = booking.NewRedisLocker(redisClient, cfg.Booking.LockTTL, cfg.Booking.LockWait, log)
	}

	fallback := types.Location{
		Point:   types.Point{Lat: cfg.DefaultLocation.Lat, Lng: cfg.DefaultLocation.Lng},
		Address: cfg.DefaultLocation.Address,
	}
	// A bare clock time in a request is booked on today's date in this zone.
	zone := cfg.Scheduling.Location()
	clock := func() time.Time { return time.Now().In(zone) }

	locationSvc := location.NewService(location.NewStore(db), fallback, log)
	doctorStore := doctor.NewStore(db)
	doctorSvc := doctor.NewService(doctorStore)
	appointmentStore := appointment.NewStore(db)
	appointmentSvc := appointment.NewService(appointmentStore, log).WithClock(clock)

	rankerSvc := matching.NewService(locationSvc, doctorSvc, appointmentStore, oracle,
		cfg.Scheduling.BufferMinutes, cfg.Matching.Concurrency, log).WithClock(clock)
	validator := booking.NewValidator(locationSvc, doctorSvc, appointmentStore,
		feasibility.NewEngine(oracle, cfg.Scheduling.BufferMinutes), locker,
		cfg.Scheduling.DefaultDurationMinutes, log).WithClock(clock)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Ranker:          rankerSvc,
		Booker:          validator,
		Appointments:    appointmentSvc,
		DB:              db,
		DefaultDuration: cfg.Scheduling.DefaultDurationMinutes,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		Log:             log,
	})

	log.Info().
		Str("oracle", cfg.Oracle.Provider).
		Str("fail_policy", cfg.Oracle.FailPolicy).
		Int("buffer_minutes", cfg.Scheduling.BufferMinutes).
		Str("time_zone", zone.String()).
		Bool("redis", redisClient != nil).
		Msg("homecare api starting")
	return httptransport.NewServer(cfg.HTTP.Addr, handler, log).Run(ctx)
}

// newRouter picks the travel-time backend; with Redis configured it is
// wrapped in the shared route cache.
func newRouter(cfg config.OracleConfig, redisClient *redis.Client, log zerolog.Logger) (maps.Router, error) {
	var r maps.Router
	switch cfg.Provider {
	case "osrm":
		r = maps.NewOSRMRouter(cfg.OSRMBaseURL, &http.Client{Timeout: cfg.Timeout + time.Second})
	case "google":
		g, err := maps.NewGoogleRouter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("google maps client: %w", err)
		}
		r = g
	case "haversine":
		r = maps.HaversineRouter{}
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
	if redisClient != nil {
		r = maps.NewCachedRouter(r, redisClient, cfg.CacheTTL, log)
	}
	return r, nil
}
