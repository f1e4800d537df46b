package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"campusride/internal/types"
)

// Place is a pickup or dropoff candidate returned by a search.
type Place struct {
	Name    string      `json:"name"`
	Address string      `json:"address"`
	PlaceID string      `json:"placeId"`
	Point   types.Point `json:"point"`
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client *maps.Client
	region string
	limit  int
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey, region string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client, region: region, limit: 8}, nil
}

// SearchNearby searches for places matching query within radiusMeters of near.
func (s *PlacesService) SearchNearby(ctx context.Context, query string, near types.Point, radiusMeters uint) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	r := &maps.TextSearchRequest{
		Query:  query,
		Region: s.region,
	}
	if !near.IsZero() {
		r.Location = &maps.LatLng{Lat: near.Lat, Lng: near.Lng}
		r.Radius = radiusMeters
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}

	seen := make(map[string]bool)
	var results []Place
	for _, result := range resp.Results {
		if seen[result.PlaceID] {
			continue
		}
		seen[result.PlaceID] = true
		results = append(results, Place{
			Name:    result.Name,
			Address: result.FormattedAddress,
			PlaceID: result.PlaceID,
			Point:   types.Point{Lat: result.Geometry.Location.Lat, Lng: result.Geometry.Location.Lng},
		})
		if len(results) >= s.limit {
			break
		}
	}
	return results, nil
}
