package models

import (
	"time"
)

// Role determines what a user may do. Admins manage journeys and
// invitations; regular users follow journeys and update their own profile.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// User represents a registered account. Accounts are created either by the
// seed step or by redeeming an invitation token.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Name     string `json:"name"`
	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"type:varchar(16);default:'USER';not null" json:"role"`

	// InvitationID links back to the invitation that was redeemed to create
	// this account. Nil for seeded accounts.
	InvitationID *uint       `gorm:"index" json:"invitation_id,omitempty"`
	Invitation   *Invitation `gorm:"foreignKey:InvitationID" json:"-"`

	// Relationships
	Journeys         []Journey `gorm:"foreignKey:UserID" json:"journeys,omitempty"`
	FollowedJourneys []Journey `gorm:"many2many:journey_followers" json:"followed_journeys,omitempty"`
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser is the trimmed user shape embedded in journey responses.
type PublicUser struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Public returns the user reduced to the fields safe to expose to other
// family members.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}
