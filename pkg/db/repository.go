package db

import (
	"time"

	"github.com/ItsMariusBC/TrainStats/pkg/models"
	"gorm.io/gorm"
)

// JourneyFilter narrows journey list queries.
type JourneyFilter struct {
	Status           models.Status
	Search           string
	StartDateFrom    *time.Time
	IncludeCompleted bool
	Limit            int

	// ViewerID/ViewerIsAdmin drive the visibility clause: non-admins only
	// see public journeys and their own.
	ViewerID      uint
	ViewerIsAdmin bool
}

// Repository provides database operations for specific models
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *DB {
	return r.db
}

// User repository methods

func (r *Repository) CreateUser(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *Repository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	return &user, err
}

func (r *Repository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	return &user, err
}

func (r *Repository) UpdateUser(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *Repository) CountUsers() (int, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return int(count), err
}

func (r *Repository) ListUsers(limit, offset int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at ASC").Limit(limit).Offset(offset).Find(&users).Error
	return users, err
}

// Journey repository methods

func (r *Repository) CreateJourney(journey *models.Journey) error {
	return r.db.Create(journey).Error
}

// GetJourneyByID loads a journey with its ordered stops, creator and
// followers.
func (r *Repository) GetJourneyByID(id uint) (*models.Journey, error) {
	var journey models.Journey
	err := r.db.
		Preload("Stops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("stops.\"order\" ASC")
		}).
		Preload("CreatedBy").
		Preload("Followers").
		First(&journey, id).Error
	return &journey, err
}

func (r *Repository) ListJourneys(filter JourneyFilter) ([]models.Journey, error) {
	query := r.db.Model(&models.Journey{}).
		Preload("Stops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("stops.\"order\" ASC")
		}).
		Preload("CreatedBy").
		Preload("Followers")

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	} else if !filter.IncludeCompleted {
		query = query.Where("status IN ?", []models.Status{models.StatusScheduled, models.StatusOngoing})
	}

	if filter.StartDateFrom != nil {
		query = query.Where("start_date >= ?", *filter.StartDateFrom)
	}

	if filter.Search != "" {
		query = query.Where("title LIKE ?", "%"+filter.Search+"%")
	}

	if !filter.ViewerIsAdmin {
		query = query.Where("user_id = ? OR is_public = ?", filter.ViewerID, true)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var journeys []models.Journey
	err := query.
		Order("status ASC").
		Order("start_date ASC").
		Limit(limit).
		Find(&journeys).Error
	return journeys, err
}

// ListAllJourneys returns every journey with ordered stops, newest first.
// Admin dashboard view.
func (r *Repository) ListAllJourneys() ([]models.Journey, error) {
	var journeys []models.Journey
	err := r.db.
		Preload("Stops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("stops.\"order\" ASC")
		}).
		Order("start_date DESC").
		Find(&journeys).Error
	return journeys, err
}

func (r *Repository) UpdateJourney(journey *models.Journey) error {
	return r.db.Save(journey).Error
}

// UpdateJourneyFields applies a partial update.
func (r *Repository) UpdateJourneyFields(tx *gorm.DB, id uint, fields map[string]interface{}) error {
	return tx.Model(&models.Journey{}).Where("id = ?", id).Updates(fields).Error
}

// DeleteJourney removes a journey, its stops and its follower links in one
// transaction. Stop deletion is explicit rather than relying on the driver
// honoring the FK cascade.
func (r *Repository) DeleteJourney(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("journey_id = ?", id).Delete(&models.Stop{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM journey_followers WHERE journey_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Journey{}, id).Error
	})
}

// FlipJourneyStatus performs a conditional status transition so that two
// concurrent sweeps cannot double-apply it. Returns true when this call won
// the transition.
func (r *Repository) FlipJourneyStatus(id uint, from, to models.Status, endDate *time.Time) (bool, error) {
	fields := map[string]interface{}{"status": to}
	if endDate != nil {
		fields["end_date"] = *endDate
	}

	result := r.db.Model(&models.Journey{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return result.RowsAffected > 0, result.Error
}

// FindScheduledDue returns SCHEDULED journeys whose start date has passed
// and which still have at least one upcoming stop.
func (r *Repository) FindScheduledDue(now time.Time) ([]models.Journey, error) {
	var journeys []models.Journey
	err := r.db.
		Preload("Stops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("stops.\"order\" ASC")
		}).
		Where("status = ? AND start_date <= ?", models.StatusScheduled, now).
		Where("EXISTS (SELECT 1 FROM stops WHERE stops.journey_id = journeys.id AND stops.time >= ?)", now).
		Find(&journeys).Error
	return journeys, err
}

// FindOngoingElapsed returns ONGOING journeys whose every stop time has
// passed.
func (r *Repository) FindOngoingElapsed(now time.Time) ([]models.Journey, error) {
	var journeys []models.Journey
	err := r.db.
		Preload("Stops", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("stops.\"order\" ASC")
		}).
		Where("status = ?", models.StatusOngoing).
		Where("NOT EXISTS (SELECT 1 FROM stops WHERE stops.journey_id = journeys.id AND stops.time >= ?)", now).
		Find(&journeys).Error
	return journeys, err
}

// Follower methods

func (r *Repository) IsFollower(journeyID, userID uint) (bool, error) {
	var count int64
	err := r.db.Table("journey_followers").
		Where("journey_id = ? AND user_id = ?", journeyID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) AddFollower(journeyID, userID uint) error {
	journey := models.Journey{ID: journeyID}
	return r.db.Model(&journey).Association("Followers").Append(&models.User{ID: userID})
}

func (r *Repository) RemoveFollower(journeyID, userID uint) error {
	journey := models.Journey{ID: journeyID}
	return r.db.Model(&journey).Association("Followers").Delete(&models.User{ID: userID})
}

// Stop methods

func (r *Repository) CreateStop(tx *gorm.DB, stop *models.Stop) error {
	return tx.Create(stop).Error
}

func (r *Repository) UpdateStopFields(tx *gorm.DB, id uint, fields map[string]interface{}) error {
	return tx.Model(&models.Stop{}).Where("id = ?", id).Updates(fields).Error
}

// MarkStopsPassedThrough marks every stop with order <= through as passed.
// Stops already carrying an actual time keep it.
func (r *Repository) MarkStopsPassedThrough(tx *gorm.DB, journeyID uint, through int, actualTime time.Time) error {
	return tx.Model(&models.Stop{}).
		Where("journey_id = ? AND \"order\" <= ?", journeyID, through).
		Updates(map[string]interface{}{"passed": true, "actual_time": actualTime}).Error
}

// ResetStopsAfter clears the passed flag and actual time of every stop with
// order > after.
func (r *Repository) ResetStopsAfter(tx *gorm.DB, journeyID uint, after int) error {
	return tx.Model(&models.Stop{}).
		Where("journey_id = ? AND \"order\" > ?", journeyID, after).
		Updates(map[string]interface{}{"passed": false, "actual_time": nil}).Error
}

// MarkAllStopsPassed forces every stop of the journey to passed.
func (r *Repository) MarkAllStopsPassed(tx *gorm.DB, journeyID uint) error {
	return tx.Model(&models.Stop{}).
		Where("journey_id = ?", journeyID).
		Update("passed", true).Error
}

// ShiftStopOrders renumbers stops at or beyond fromOrder by delta.
func (r *Repository) ShiftStopOrders(tx *gorm.DB, journeyID uint, fromOrder, delta int) error {
	return tx.Model(&models.Stop{}).
		Where("journey_id = ? AND \"order\" >= ?", journeyID, fromOrder).
		Update("order", gorm.Expr("\"order\" + ?", delta)).Error
}

func (r *Repository) DeleteStop(tx *gorm.DB, id uint) error {
	return tx.Delete(&models.Stop{}, id).Error
}

// Invitation methods

func (r *Repository) CreateInvitation(invitation *models.Invitation) error {
	return r.db.Create(invitation).Error
}

func (r *Repository) GetInvitationByID(id uint) (*models.Invitation, error) {
	var invitation models.Invitation
	err := r.db.Preload("CreatedBy").Preload("UsedBy").First(&invitation, id).Error
	return &invitation, err
}

func (r *Repository) GetInvitationByToken(token string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := r.db.Preload("UsedBy").Where("token = ?", token).First(&invitation).Error
	return &invitation, err
}

func (r *Repository) CountInvitations() (int, error) {
	var count int64
	err := r.db.Model(&models.Invitation{}).Count(&count).Error
	return int(count), err
}

func (r *Repository) ListInvitations(limit, offset int) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := r.db.
		Preload("CreatedBy").
		Preload("UsedBy").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&invitations).Error
	return invitations, err
}

// FindActiveFamilyCode returns the current redeemable family code, if any.
func (r *Repository) FindActiveFamilyCode(now time.Time) (*models.Invitation, error) {
	var invitation models.Invitation
	err := r.db.
		Where("is_family_code = ? AND uses_left > 0 AND expires_at > ?", true, now).
		First(&invitation).Error
	return &invitation, err
}

// FindActiveInvitationByEmail returns a still-redeemable invitation for the
// given email address, if any.
func (r *Repository) FindActiveInvitationByEmail(email string, now time.Time) (*models.Invitation, error) {
	var invitation models.Invitation
	err := r.db.
		Where("email = ? AND uses_left > 0 AND expires_at > ?", email, now).
		First(&invitation).Error
	return &invitation, err
}

func (r *Repository) UpdateInvitation(invitation *models.Invitation) error {
	return r.db.Save(invitation).Error
}

func (r *Repository) UpdateInvitationFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&models.Invitation{}).Where("id = ?", id).Updates(fields).Error
}

// DecrementInvitationUses atomically consumes one use. Returns false when
// the invitation was already exhausted, so two racing redemptions of the
// last use cannot both succeed.
func (r *Repository) DecrementInvitationUses(tx *gorm.DB, id uint) (bool, error) {
	result := tx.Model(&models.Invitation{}).
		Where("id = ? AND uses_left > 0", id).
		Update("uses_left", gorm.Expr("uses_left - 1"))
	return result.RowsAffected > 0, result.Error
}

func (r *Repository) DeleteInvitation(id uint) error {
	return r.db.Delete(&models.Invitation{}, id).Error
}

// ZeroFamilyCodes invalidates every family code by zeroing its remaining
// uses.
func (r *Repository) ZeroFamilyCodes() error {
	return r.db.Model(&models.Invitation{}).
		Where("is_family_code = ?", true).
		Update("uses_left", 0).Error
}
