package models

import (
	"time"
)

// Status is the lifecycle state of a journey.
//
// SCHEDULED -> ONGOING -> COMPLETED, with CANCELLED reachable from any
// non-terminal state via an explicit admin update.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusOngoing   Status = "ONGOING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// ValidStatus reports whether s is one of the four lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusScheduled, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions other
// than an explicit admin override.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Journey is a tracked train trip owned by its creating user. CurrentStop is
// the zero-based index into the ordered stops and is the single source of
// truth for where the train is.
type Journey struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string     `gorm:"not null" json:"title"`
	TrainNumber *string    `json:"train_number,omitempty"`
	StartDate   time.Time  `gorm:"not null;index" json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Status      Status     `gorm:"type:varchar(16);default:'SCHEDULED';not null;index" json:"status"`
	CurrentStop int        `gorm:"default:0;not null" json:"current_stop"`
	IsPublic    bool       `gorm:"default:true;not null" json:"is_public"`
	Notes       *string    `json:"notes,omitempty"`

	UserID    uint `gorm:"not null;index" json:"user_id"`
	CreatedBy User `gorm:"foreignKey:UserID" json:"created_by,omitempty"`

	// Stops are cascade-deleted with the journey.
	Stops     []Stop `gorm:"foreignKey:JourneyID;constraint:OnDelete:CASCADE" json:"stops,omitempty"`
	Followers []User `gorm:"many2many:journey_followers" json:"followers,omitempty"`
}

// Stop is a single waypoint within a journey. Order runs 0..N-1 and stays
// contiguous across insertions and removals.
type Stop struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	JourneyID uint `gorm:"not null;index" json:"journey_id"`

	Name       string     `gorm:"not null" json:"name"`
	Time       time.Time  `gorm:"not null" json:"time"`
	Order      int        `gorm:"not null" json:"order"`
	Passed     bool       `gorm:"default:false;not null" json:"passed"`
	ActualTime *time.Time `json:"actual_time,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

// JourneyMetrics are the derived read-only figures attached to journey
// responses. DistanceKm is a stable pseudo-distance, not a measured value.
type JourneyMetrics struct {
	TotalStops      int     `json:"total_stops"`
	DistanceKm      int     `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	Progress        float64 `json:"progress"`
	FollowersCount  int     `json:"followers_count"`
}
