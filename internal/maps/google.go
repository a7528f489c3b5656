package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"homecare/internal/types"
)

// GoogleRouter handles interactions with the Google Maps Directions API.
type GoogleRouter struct {
	client *maps.Client
}

// NewGoogleRouter creates a new GoogleRouter with the given API Key. Extra
// client options are applied after the key.
func NewGoogleRouter(apiKey string, opts ...maps.ClientOption) (*GoogleRouter, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleRouter{client: client}, nil
}

func (s *GoogleRouter) RouteSeconds(ctx context.Context, origin, dest types.Point) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(dest),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		if isNoRouteStatus(err) {
			return 0, fmt.Errorf("maps api: %v: %w", err, ErrNoRoute)
		}
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoRoute
	}

	var total float64
	for _, leg := range routes[0].Legs {
		total += leg.Duration.Seconds()
	}
	return total, nil
}

func latLng(p types.Point) string {
	return formatCoord(p.Lat) + "," + formatCoord(p.Lng)
}

// The client surfaces API statuses as "maps: STATUS - message" errors. Only
// ZERO_RESULTS says no driving route exists; NOT_FOUND is a failed geocode of
// an endpoint and, like quota or transport errors, goes to the fail policy.
func isNoRouteStatus(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ZERO_RESULTS")
}
