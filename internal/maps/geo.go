package maps

import (
	"context"
	"math"

	"homecare/internal/types"
)

const (
	earthRadiusKm = 6371.0

	// DefaultSpeedKmPerMin is roughly 40 km/h of urban driving.
	DefaultSpeedKmPerMin = 0.67
)

// HaversineRouter estimates driving time from great-circle distance at a fixed
// speed. It needs no network and is meant for development and offline runs.
type HaversineRouter struct {
	SpeedKmPerMin float64
}

func (h HaversineRouter) RouteSeconds(_ context.Context, origin, dest types.Point) (float64, error) {
	speed := h.SpeedKmPerMin
	if speed <= 0 {
		speed = DefaultSpeedKmPerMin
	}
	km := haversineKm(origin.Lat, origin.Lng, dest.Lat, dest.Lng)
	return km / speed * 60, nil
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
