package auth

// Role determines which side of a case an authenticated caller may act
// for. Admins carry the arbitration capability.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// Identity is the verified caller extracted from a token.
type Identity struct {
	UserID string
	Role   Role
}

// CanArbitrate reports whether the identity may resolve disputes and
// cancel cases.
func (i Identity) CanArbitrate() bool {
	return i.Role == RoleAdmin
}

func isValidRole(role Role) bool {
	switch role {
	case RoleClient, RoleAgent, RoleAdmin:
		return true
	default:
		return false
	}
}
