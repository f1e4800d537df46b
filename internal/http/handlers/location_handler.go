// README: Place search and fare quote handlers backed by the maps provider.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campusride/internal/apperr"
	"campusride/internal/maps"
	"campusride/internal/modules/pricing"
	"campusride/internal/types"
)

const defaultSearchRadiusMeters = 5000

// PlaceSearcher is implemented by *maps.PlacesService.
type PlaceSearcher interface {
	SearchNearby(ctx context.Context, query string, near types.Point, radiusMeters uint) ([]maps.Place, error)
}

type LocationHandler struct {
	places  PlaceSearcher
	routes  *maps.RouteService
	pricing *pricing.Service
}

// NewLocationHandler accepts a nil places searcher; search then reports 503.
func NewLocationHandler(places PlaceSearcher, routes *maps.RouteService, pricingSvc *pricing.Service) *LocationHandler {
	return &LocationHandler{places: places, routes: routes, pricing: pricingSvc}
}

// SearchPlaces serves ?q=...&lat=..&lng=..
func (h *LocationHandler) SearchPlaces(c *gin.Context) {
	if h.places == nil {
		writeError(c, http.StatusServiceUnavailable, "place search is not configured")
		return
	}
	near, ok := queryPoint(c, "lat", "lng")
	if !ok {
		return
	}
	list, err := h.places.SearchNearby(c.Request.Context(), c.Query("q"), near, defaultSearchRadiusMeters)
	if err != nil {
		writeAppError(c, apperr.Transient(err))
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"places": list})
}

// Quote serves ?fromLat=..&fromLng=..&toLat=..&toLng=.. with the route
// estimate and suggested fare shown before booking.
func (h *LocationHandler) Quote(c *gin.Context) {
	from, ok := queryPoint(c, "fromLat", "fromLng")
	if !ok {
		return
	}
	to, ok := queryPoint(c, "toLat", "toLng")
	if !ok {
		return
	}
	route, err := h.routes.Route(c.Request.Context(), from, to)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"quote":        h.pricing.Suggest(route.DistanceKm()),
		"distanceText": route.DistanceText,
		"durationText": route.DurationText,
		"straightLine": route.StraightLine,
	})
}

func queryPoint(c *gin.Context, latKey, lngKey string) (types.Point, bool) {
	lat, err1 := strconv.ParseFloat(c.Query(latKey), 64)
	lng, err2 := strconv.ParseFloat(c.Query(lngKey), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "invalid "+latKey+"/"+lngKey)
		return types.Point{}, false
	}
	return types.Point{Lat: lat, Lng: lng}, true
}
