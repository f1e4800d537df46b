// README: Pricing service validates offered fares and suggests a campus fare.
package pricing

import (
	"fmt"
	"math"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

var ErrFareOutOfRange = apperr.Validation("fare out of range")

type Service struct {
	bounds Bounds
	rate   Rate
}

func NewService(bounds Bounds, rate Rate) *Service {
	return &Service{bounds: bounds, rate: rate}
}

func (s *Service) Bounds() Bounds {
	return s.bounds
}

// Validate accepts fares with Min <= amount <= Max.
func (s *Service) Validate(fare types.Money) error {
	if fare.Currency != "" && s.bounds.Currency != "" && fare.Currency != s.bounds.Currency {
		return apperr.Wrap(ErrFareOutOfRange, fmt.Errorf("currency %s not accepted", fare.Currency))
	}
	if fare.Amount < s.bounds.Min || fare.Amount > s.bounds.Max {
		return apperr.Wrap(ErrFareOutOfRange, fmt.Errorf("%d not within %d..%d", fare.Amount, s.bounds.Min, s.bounds.Max))
	}
	return nil
}

// Suggest returns base + perKm*distance, rounded up to 10 minor units and
// clamped into the campus bounds.
func (s *Service) Suggest(distanceKm float64) Quote {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		distanceKm = 0
	}
	amount := s.rate.BaseFare + int64(math.Ceil(distanceKm*float64(s.rate.PerKm)))
	if rem := amount % 10; rem != 0 {
		amount += 10 - rem
	}
	if amount < s.bounds.Min {
		amount = s.bounds.Min
	}
	if amount > s.bounds.Max {
		amount = s.bounds.Max
	}
	return Quote{
		Suggested:  types.Money{Amount: amount, Currency: s.bounds.Currency},
		Min:        types.Money{Amount: s.bounds.Min, Currency: s.bounds.Currency},
		Max:        types.Money{Amount: s.bounds.Max, Currency: s.bounds.Currency},
		DistanceKm: distanceKm,
	}
}
