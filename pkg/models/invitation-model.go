package models

import (
	"time"
)

// Invitation is a capability token granting account creation. A family code
// is a long-lived, multi-use variant shared within the household; regular
// invitations are short-lived and usually restricted to one email address.
type Invitation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Token string  `gorm:"uniqueIndex;not null" json:"token"`
	Email *string `gorm:"index" json:"email,omitempty"`
	Role  Role    `gorm:"type:varchar(16);default:'USER';not null" json:"role"`

	MaxUses      int       `gorm:"default:1;not null" json:"max_uses"`
	UsesLeft     int       `gorm:"default:1;not null" json:"uses_left"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`
	IsFamilyCode bool      `gorm:"default:false;not null;index" json:"is_family_code"`

	CreatedByID uint `gorm:"not null;index" json:"created_by_id"`
	CreatedBy   User `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`

	// UsedBy holds the accounts created by redeeming this invitation.
	UsedBy []User `gorm:"foreignKey:InvitationID" json:"used_by,omitempty"`
}

// Active reports whether the invitation can still be redeemed at the given
// instant.
func (i *Invitation) Active(now time.Time) bool {
	return i.UsesLeft > 0 && i.ExpiresAt.After(now)
}

// Redeemed reports whether at least one account was created from this
// invitation.
func (i *Invitation) Redeemed() bool {
	return len(i.UsedBy) > 0
}
