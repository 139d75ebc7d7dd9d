package domain

// Role is the kind of account making a request. Identity is established
// upstream; the service only trusts the role it is handed.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Principal identifies the caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}
