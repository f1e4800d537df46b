// README: Campus fare bounds and suggestion rate.
package pricing

import "campusride/internal/types"

// Bounds are the campus-wide inclusive fare limits in minor units.
type Bounds struct {
	Min      int64
	Max      int64
	Currency string
}

// Rate drives the fare suggestion shown to a customer before offers arrive.
type Rate struct {
	BaseFare int64
	PerKm    int64
}

type Quote struct {
	Suggested  types.Money `json:"suggested"`
	Min        types.Money `json:"min"`
	Max        types.Money `json:"max"`
	DistanceKm float64     `json:"distanceKm"`
}
