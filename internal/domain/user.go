package domain

import "time"

type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleMaster     Role = "master"
	RoleDealer     Role = "dealer"
	RoleRetailer   Role = "retailer"
)

var roleRanks = map[Role]int{
	RoleRetailer:   1,
	RoleDealer:     2,
	RoleMaster:     3,
	RoleAdmin:      4,
	RoleSuperAdmin: 5,
}

func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank orders roles from retailer (1) up to superadmin (5). Unknown roles rank 0.
func (r Role) Rank() int {
	return roleRanks[r]
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	CreatedBy *int64    `json:"created_by,omitempty"` // onboarding parent, immutable
	PINHash   string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
