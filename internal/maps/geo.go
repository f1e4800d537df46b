// README: Pure geographic helpers (great-circle distance, straight-line routes).
package maps

import (
	"fmt"
	"math"
	"time"

	"campusride/internal/types"
)

const earthRadiusKm = 6371.0

// straightLineSpeedKmh is the assumed average speed for campus roads when no
// directions are available.
const straightLineSpeedKmh = 30.0

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)
	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// StraightLine builds a two-point route used when directions are unavailable.
func StraightLine(origin, destination types.Point) Route {
	km := HaversineKm(origin, destination)
	d := time.Duration(km / straightLineSpeedKmh * float64(time.Hour)).Round(time.Minute)
	return Route{
		Path:           []types.Point{origin, destination},
		DistanceMeters: int(math.Round(km * 1000)),
		Duration:       d,
		DistanceText:   formatDistance(km),
		DurationText:   formatDuration(d),
		StraightLine:   true,
	}
}

func formatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	if mins < 1 {
		mins = 1
	}
	if mins < 60 {
		if mins == 1 {
			return "1 min"
		}
		return fmt.Sprintf("%d mins", mins)
	}
	return fmt.Sprintf("%d hr %d mins", mins/60, mins%60)
}
