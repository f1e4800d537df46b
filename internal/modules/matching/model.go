// README: Driver availability entries and dispatch tuning for new bookings.
package matching

import (
	"time"

	"campusride/internal/types"
)

// Availability is a driver's last reported position in the pool.
type Availability struct {
	DriverID types.ID    `json:"driverId"`
	Position types.Point `json:"position"`
	SeenAt   time.Time   `json:"seenAt"`
}

const (
	// selectPoolFactor widens the GEO search so the random pick is not always the closest drivers.
	selectPoolFactor = 2
	// keyTTL bounds dispatch bookkeeping; bookings resolve well within a day.
	keyTTL = 24 * time.Hour
)
