package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role in the team hierarchy
type Role string

const (
	RoleLeader Role = "LEADER"
	RoleMember Role = "MEMBER"
)

// IsValid reports whether the role is one of the known values
func (r Role) IsValid() bool {
	return r == RoleLeader || r == RoleMember
}

// User represents an account. Field names follow the mobile client's
// wire contract; the password hash never leaves the server.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	Name            string     `json:"name"`
	Role            Role       `json:"role"`
	InvitedByUserID *uuid.UUID `json:"invitedByUserId"`
	CreatedAt       time.Time  `json:"createdAt"`
}
