// README: User profile documents shared by customers and drivers.
package profile

import (
	"time"

	"campusride/internal/types"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleDriver
}

type Profile struct {
	UID       types.ID  `json:"uid" firestore:"uid"`
	Name      string    `json:"name" firestore:"name"`
	Phone     string    `json:"phone" firestore:"phone"`
	Role      Role      `json:"role" firestore:"role"`
	FCMToken  string    `json:"fcmToken,omitempty" firestore:"fcmToken"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}
