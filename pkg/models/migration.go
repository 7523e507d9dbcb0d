package models

import (
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the schema for all entities.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Invitation{},
		&Journey{},
		&Stop{},
	)
}

// CreateIndexes adds composite indexes for the hot query paths.
func CreateIndexes(db *gorm.DB) error {
	// Stop ordering within a journey
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_stops_journey_order ON stops(journey_id, \"order\")").Error; err != nil {
		return err
	}

	// Sweeper scans: SCHEDULED journeys past their start date, ONGOING journeys
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_journeys_status_start ON journeys(status, start_date)").Error; err != nil {
		return err
	}

	// Active family code lookup
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_invitations_family_active ON invitations(is_family_code, uses_left, expires_at)").Error; err != nil {
		return err
	}

	return nil
}
