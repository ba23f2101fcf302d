package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Invitation lifecycle statuses. Pending is the only non-terminal status;
// the allowed transitions are pending -> accepted|expired|revoked.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationExpired  = "expired"
	InvitationRevoked  = "revoked"
)

// InvitationTTL is how long an invitation stays redeemable after creation
// (and after each resend)
const InvitationTTL = 7 * 24 * time.Hour

// Invitation represents the structure of an admin invitation document in MongoDB
type Invitation struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email         string             `bson:"email" json:"email"`
	Token         string             `bson:"token" json:"-"`
	Role          string             `bson:"role" json:"role"`
	InvitedBy     string             `bson:"invitedBy" json:"invitedBy"`
	InvitedByName string             `bson:"invitedByName" json:"invitedByName"`
	Status        string             `bson:"status" json:"status"`
	ExpiresAt     time.Time          `bson:"expiresAt" json:"expiresAt"`
	AcceptedAt    *time.Time         `bson:"acceptedAt,omitempty" json:"acceptedAt,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// EffectiveStatus returns the status an invitation should be observed with
// at time now. Expiry is time-derived rather than event-driven, so a stored
// "pending" past its expiresAt reads as expired even before a write path has
// persisted the correction. Terminal statuses are returned as stored.
func (inv *Invitation) EffectiveStatus(now time.Time) string {
	if inv.Status == InvitationPending && now.After(inv.ExpiresAt) {
		return InvitationExpired
	}
	return inv.Status
}

// EffectivelyPending reports whether the invitation is still redeemable at
// time now
func (inv *Invitation) EffectivelyPending(now time.Time) bool {
	return inv.EffectiveStatus(now) == InvitationPending
}

// InvitationStats holds the derived status counts over all invitations
type InvitationStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Expired  int `json:"expired"`
	Revoked  int `json:"revoked"`
}
