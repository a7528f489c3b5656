package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"homecare/internal/types"
)

const DefaultOSRMBaseURL = "http://router.project-osrm.org"

// OSRMRouter queries the OSRM HTTP route service for driving durations.
type OSRMRouter struct {
	baseURL string
	client  *http.Client
}

func NewOSRMRouter(baseURL string, client *http.Client) *OSRMRouter {
	if baseURL == "" {
		baseURL = DefaultOSRMBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OSRMRouter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (r *OSRMRouter) RouteSeconds(ctx context.Context, origin, dest types.Point) (float64, error) {
	// OSRM wants lng,lat order.
	url := fmt.Sprintf("%s/route/v1/driving/%s,%s;%s,%s?overview=false",
		r.baseURL,
		formatCoord(origin.Lng), formatCoord(origin.Lat),
		formatCoord(dest.Lng), formatCoord(dest.Lat),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("osrm request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("osrm call: %w", err)
	}
	defer resp.Body.Close()

	// OSRM reports NoRoute and friends as a JSON body on a 4xx, so decode
	// before looking at the status code.
	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("osrm decode (status %d): %w", resp.StatusCode, err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return 0, fmt.Errorf("osrm code %q: %w", body.Code, ErrNoRoute)
	}
	return body.Routes[0].Duration, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
