package maps

import (
	"context"
	"fmt"
	"log"
	"time"

	"googlemaps.github.io/maps"

	"campusride/internal/types"
)

// Route is a driving route between two points.
type Route struct {
	Path           []types.Point
	DistanceMeters int
	Duration       time.Duration
	DistanceText   string
	DurationText   string
	// StraightLine is set when the route is a fallback estimate.
	StraightLine bool
}

func (r Route) DistanceKm() float64 {
	return float64(r.DistanceMeters) / 1000
}

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
	region string
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey, region string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, region: region}, nil
}

// Route returns the driving route from origin to destination. Any directions
// failure degrades to a straight line; only context errors are returned.
func (s *RouteService) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	if s == nil || s.client == nil {
		return StraightLine(origin, destination), nil
	}
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
		Region:      s.region,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return Route{}, ctx.Err()
		}
		log.Printf("maps: directions failed, using straight line: %v", err)
		return StraightLine(origin, destination), nil
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		log.Printf("maps: no route found, using straight line")
		return StraightLine(origin, destination), nil
	}

	leg := routes[0].Legs[0]
	out := Route{
		DistanceMeters: leg.Distance.Meters,
		Duration:       leg.Duration,
		DistanceText:   leg.Distance.HumanReadable,
		DurationText:   formatDuration(leg.Duration),
	}
	path, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		log.Printf("maps: decode polyline: %v", err)
		out.Path = []types.Point{origin, destination}
		return out, nil
	}
	out.Path = make([]types.Point, len(path))
	for i, p := range path {
		out.Path[i] = types.Point{Lat: p.Lat, Lng: p.Lng}
	}
	return out, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
