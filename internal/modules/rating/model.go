// README: Ratings and the driver statistics derived from them.
package rating

import (
	"time"

	"campusride/internal/types"
)

const (
	CollectionRatings = "ratings"
	MinStars          = 0.0
	MaxStars          = 5.0
)

// Rating is keyed by booking id; a booking is rated at most once.
type Rating struct {
	ID         types.ID  `json:"id" firestore:"id"`
	BookingID  types.ID  `json:"bookingId" firestore:"bookingId"`
	CustomerID types.ID  `json:"customerId" firestore:"customerId"`
	DriverID   types.ID  `json:"driverId" firestore:"driverId"`
	Rating     float64   `json:"rating" firestore:"rating"`
	Comment    string    `json:"comment" firestore:"comment"`
	CreatedAt  time.Time `json:"createdAt" firestore:"createdAt"`
}

// DriverStats is recomputed on demand and never stored.
type DriverStats struct {
	DriverID           types.ID `json:"driverId"`
	AverageRating      float64  `json:"averageRating"`
	TotalReviews       int      `json:"totalReviews"`
	TotalCompletedJobs int      `json:"totalCompletedJobs"`
	DaysWorked         int      `json:"daysWorked"`
	JobsPerDay         float64  `json:"jobsPerDay"`
}
