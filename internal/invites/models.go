package invites

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInviteNotFound = errors.New("invitation not found")
	ErrNotPending     = errors.New("invitation already responded to")
	ErrNotInvitee     = errors.New("caller is not the invitation's invitee")
	ErrAlreadyMember  = errors.New("phone number already belongs to a member")
	ErrNotLeader      = errors.New("only leaders can send invitations")
)

// Status represents an invitation's lifecycle state. PENDING is the only
// non-terminal state; ACCEPTED and DECLINED are immutable.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
)

// Invitation represents a leader's offer to a phone number. The token is
// part of the client payload: it is the sole credential needed to redeem
// the invitation during registration.
type Invitation struct {
	ID            uuid.UUID `json:"id"`
	InviterUserID uuid.UUID `json:"inviterUserId"`
	InviteePhone  string    `json:"inviteePhone"`
	InviteeName   *string   `json:"inviteeName"`
	Status        Status    `json:"status"`
	Token         string    `json:"token"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// ContactStatus is one entry of a check-status response: the best-known
// standing of a device contact relative to the caller.
type ContactStatus struct {
	Phone     string `json:"phone"`
	Status    string `json:"status"`
	CanInvite bool   `json:"canInvite"`
}

const (
	ContactMember     = "MEMBER"
	ContactNotInvited = "NOT_INVITED"
)
