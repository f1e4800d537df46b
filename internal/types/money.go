// README: Common value objects (IDs, coordinates, money) shared across modules.
package types

import (
	"fmt"
	"math"
)

type ID string

type Point struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lng float64 `json:"lng" firestore:"lng"`
}

// IsZero reports whether both coordinates are unset.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// Money is an amount in minor units (sen for MYR).
type Money struct {
	Amount   int64  `json:"amount" firestore:"amount"`
	Currency string `json:"currency" firestore:"currency"`
}

// FromMajor converts a decimal amount such as 4.50 into minor units.
func FromMajor(v float64, currency string) Money {
	return Money{Amount: int64(math.Round(v * 100)), Currency: currency}
}

// Major returns the amount as a decimal value.
func (m Money) Major() float64 {
	return float64(m.Amount) / 100
}

func (m Money) Add(o Money) Money {
	cur := m.Currency
	if cur == "" {
		cur = o.Currency
	}
	return Money{Amount: m.Amount + o.Amount, Currency: cur}
}

func (m Money) String() string {
	return fmt.Sprintf("%s %.2f", m.Currency, m.Major())
}
