package journeys

import (
	"errors"
	"fmt"
	"time"

	"github.com/ItsMariusBC/TrainStats/pkg/apperr"
	"github.com/ItsMariusBC/TrainStats/pkg/db"
	"github.com/ItsMariusBC/TrainStats/pkg/log"
	"github.com/ItsMariusBC/TrainStats/pkg/models"
	"github.com/ItsMariusBC/TrainStats/pkg/realtime"
	"gorm.io/gorm"
)

// Service owns the journey lifecycle: creation, partial updates, position
// advances, the status state machine and the realtime events every mutation
// publishes.
type Service struct {
	repo   *db.Repository
	bus    realtime.Bus
	logger *log.Logger
	now    func() time.Time
}

// NewService creates a journey lifecycle service.
func NewService(repo *db.Repository, bus realtime.Bus, logger *log.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// StopInput describes one stop at journey creation.
type StopInput struct {
	Name  string    `json:"name" binding:"required"`
	Time  time.Time `json:"time" binding:"required"`
	Notes *string   `json:"notes"`
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Title       string      `json:"title" binding:"required"`
	StartDate   time.Time   `json:"start_date" binding:"required"`
	Stops       []StopInput `json:"stops" binding:"required"`
	IsPublic    *bool       `json:"is_public"`
	Notes       *string     `json:"notes"`
	TrainNumber *string     `json:"train_number"`
}

// Create persists a new SCHEDULED journey with its ordered stops and
// publishes journey:created. Admin only; at least two stops required.
func (s *Service) Create(actor *models.User, in CreateInput) (*models.Journey, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("only admins can create journeys: %w", apperr.ErrForbidden)
	}

	if in.Title == "" || len(in.Stops) < 2 {
		return nil, fmt.Errorf("a journey needs a title, a start date and at least 2 stops: %w", apperr.ErrInvalidInput)
	}

	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	journey := &models.Journey{
		Title:       in.Title,
		StartDate:   in.StartDate,
		Status:      models.StatusScheduled,
		IsPublic:    isPublic,
		Notes:       in.Notes,
		TrainNumber: in.TrainNumber,
		UserID:      actor.ID,
	}
	for i, stop := range in.Stops {
		journey.Stops = append(journey.Stops, models.Stop{
			Name:  stop.Name,
			Time:  stop.Time,
			Order: i,
			Notes: stop.Notes,
		})
	}

	if err := s.repo.CreateJourney(journey); err != nil {
		return nil, fmt.Errorf("failed to create journey: %w", err)
	}

	created, err := s.repo.GetJourneyByID(journey.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload journey: %w", err)
	}

	s.bus.Publish(realtime.TopicJourneyCreated, created)
	s.logger.LogJourney(created.ID, actor.ID, "create", string(created.Status), true)
	return created, nil
}

// ListInput narrows List results.
type ListInput struct {
	Status           string
	Search           string
	StartDateFrom    *time.Time
	IncludeCompleted bool
	Limit            int
}

// List returns the journeys visible to the actor, each with derived
// metrics. Non-admins only see public journeys and their own.
func (s *Service) List(actor *models.User, in ListInput) ([]View, error) {
	filter := db.JourneyFilter{
		Search:           in.Search,
		StartDateFrom:    in.StartDateFrom,
		IncludeCompleted: in.IncludeCompleted,
		Limit:            in.Limit,
		ViewerID:         actor.ID,
		ViewerIsAdmin:    actor.IsAdmin(),
	}
	if in.Status != "" {
		status := models.Status(in.Status)
		if !models.ValidStatus(status) {
			return nil, fmt.Errorf("unknown status %q: %w", in.Status, apperr.ErrInvalidInput)
		}
		filter.Status = status
	}

	journeys, err := s.repo.ListJourneys(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}

	views := make([]View, 0, len(journeys))
	for i := range journeys {
		views = append(views, s.buildView(&journeys[i]))
	}
	return views, nil
}

// ListAll returns every journey, newest first. Admin dashboard.
func (s *Service) ListAll(actor *models.User) ([]models.Journey, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("admin area: %w", apperr.ErrForbidden)
	}
	journeys, err := s.repo.ListAllJourneys()
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}
	return journeys, nil
}

// Get returns one journey with derived metrics. Callers must be admin, the
// owner, or the journey must be public. A non-owner viewing the journey is
// silently added as a follower so later events reach them.
func (s *Service) Get(actor *models.User, id uint) (*View, error) {
	journey, err := s.loadJourney(id)
	if err != nil {
		return nil, err
	}

	isOwner := journey.UserID == actor.ID
	if !actor.IsAdmin() && !isOwner && !journey.IsPublic {
		return nil, fmt.Errorf("journey %d is not public: %w", id, apperr.ErrForbidden)
	}

	if !isOwner {
		following, err := s.repo.IsFollower(id, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check follower: %w", err)
		}
		if !following {
			if err := s.repo.AddFollower(id, actor.ID); err != nil {
				return nil, fmt.Errorf("failed to auto-follow: %w", err)
			}
			journey, err = s.loadJourney(id)
			if err != nil {
				return nil, err
			}
		}
	}

	view := s.buildView(journey)
	return &view, nil
}

// StopUpdate toggles the passed flag of one stop by id.
type StopUpdate struct {
	ID     uint    `json:"id" binding:"required"`
	Passed *bool   `json:"passed"`
	Notes  *string `json:"notes"`
}

// AddStopInput inserts a stop, optionally at a specific order; stops at or
// beyond that order are renumbered.
type AddStopInput struct {
	Name  string    `json:"name" binding:"required"`
	Time  time.Time `json:"time" binding:"required"`
	Order *int      `json:"order"`
	Notes *string   `json:"notes"`
}

// UpdateInput is the partial-update payload for Update. Nil fields are left
// untouched.
type UpdateInput struct {
	Title       *string        `json:"title"`
	Status      *models.Status `json:"status"`
	IsPublic    *bool          `json:"is_public"`
	Notes       *string        `json:"notes"`
	TrainNumber *string        `json:"train_number"`
	CurrentStop *int           `json:"current_stop"`

	StopUpdates []StopUpdate `json:"stop_updates"`

	// UpdateStatus bulk-marks stops from CurrentStop: everything at or
	// before it passed, everything after reset.
	UpdateStatus bool          `json:"update_status"`
	AddStop      *AddStopInput `json:"add_stop"`
	RemoveStopID uint          `json:"remove_stop_id"`
}

// Update applies an admin patch to a journey and its stops atomically and
// publishes journey:updated. Status changes follow the state machine:
// entering ONGOING resets the position, entering COMPLETED stamps the end
// date and marks every stop passed.
func (s *Service) Update(actor *models.User, id uint, in UpdateInput) (*models.Journey, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("only admins can update journeys: %w", apperr.ErrForbidden)
	}

	journey, err := s.loadJourney(id)
	if err != nil {
		return nil, err
	}

	if in.Status != nil && !models.ValidStatus(*in.Status) {
		return nil, fmt.Errorf("unknown status %q: %w", *in.Status, apperr.ErrInvalidInput)
	}
	if in.CurrentStop != nil && (*in.CurrentStop < 0 || *in.CurrentStop > len(journey.Stops)) {
		return nil, fmt.Errorf("current stop %d out of range: %w", *in.CurrentStop, apperr.ErrInvalidInput)
	}

	now := s.now()
	err = s.repo.DB().Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{}
		if in.Title != nil {
			fields["title"] = *in.Title
		}
		if in.IsPublic != nil {
			fields["is_public"] = *in.IsPublic
		}
		if in.Notes != nil {
			fields["notes"] = *in.Notes
		}
		if in.TrainNumber != nil {
			fields["train_number"] = *in.TrainNumber
		}
		if in.CurrentStop != nil {
			fields["current_stop"] = *in.CurrentStop
		}

		if in.Status != nil {
			fields["status"] = *in.Status
			if *in.Status == models.StatusCompleted && journey.Status != models.StatusCompleted {
				fields["end_date"] = now
				if err := s.repo.MarkAllStopsPassed(tx, id); err != nil {
					return err
				}
			}
			if *in.Status == models.StatusCancelled && journey.Status != models.StatusCancelled {
				fields["end_date"] = now
			}
			if *in.Status == models.StatusOngoing && journey.Status != models.StatusOngoing {
				fields["current_stop"] = 0
			}
		}

		for _, update := range in.StopUpdates {
			if update.Passed == nil {
				continue
			}
			stopFields := map[string]interface{}{"passed": *update.Passed}
			if *update.Passed {
				stopFields["actual_time"] = now
			} else {
				stopFields["actual_time"] = nil
			}
			if update.Notes != nil {
				stopFields["notes"] = *update.Notes
			}
			if err := s.repo.UpdateStopFields(tx, update.ID, stopFields); err != nil {
				return err
			}
		}

		if in.UpdateStatus && in.CurrentStop != nil {
			if err := s.repo.MarkStopsPassedThrough(tx, id, *in.CurrentStop, now); err != nil {
				return err
			}
			if err := s.repo.ResetStopsAfter(tx, id, *in.CurrentStop); err != nil {
				return err
			}
		}

		if in.AddStop != nil {
			order := len(journey.Stops)
			if in.AddStop.Order != nil {
				order = *in.AddStop.Order
				if order < 0 || order > len(journey.Stops) {
					return fmt.Errorf("stop order %d out of range: %w", order, apperr.ErrInvalidInput)
				}
				if err := s.repo.ShiftStopOrders(tx, id, order, 1); err != nil {
					return err
				}
			}
			stop := &models.Stop{
				JourneyID: id,
				Name:      in.AddStop.Name,
				Time:      in.AddStop.Time,
				Order:     order,
				Notes:     in.AddStop.Notes,
			}
			if err := s.repo.CreateStop(tx, stop); err != nil {
				return err
			}
		}

		if in.RemoveStopID != 0 {
			var removed *models.Stop
			for i := range journey.Stops {
				if journey.Stops[i].ID == in.RemoveStopID {
					removed = &journey.Stops[i]
					break
				}
			}
			if removed != nil {
				if err := s.repo.DeleteStop(tx, removed.ID); err != nil {
					return err
				}
				if err := s.repo.ShiftStopOrders(tx, id, removed.Order+1, -1); err != nil {
					return err
				}
			}
		}

		if len(fields) > 0 {
			if err := s.repo.UpdateJourneyFields(tx, id, fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update journey: %w", err)
	}

	updated, err := s.repo.GetJourneyByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload journey: %w", err)
	}

	s.bus.Publish(realtime.TopicJourneyUpdated, updated)
	s.logger.LogJourney(id, actor.ID, "update", string(updated.Status), true)
	return updated, nil
}

// Advance marks the current stop as passed and moves the train one stop
// forward. Passing the last stop completes the journey. Admin only.
func (s *Service) Advance(actor *models.User, id uint) (*models.Journey, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("only admins can advance journeys: %w", apperr.ErrForbidden)
	}

	journey, err := s.loadJourney(id)
	if err != nil {
		return nil, err
	}

	if journey.CurrentStop >= len(journey.Stops) {
		return nil, fmt.Errorf("journey %d is already past its last stop: %w", id, apperr.ErrInvalidInput)
	}

	now := s.now()
	next := journey.CurrentStop + 1

	err = s.repo.DB().Transaction(func(tx *gorm.DB) error {
		current := journey.Stops[journey.CurrentStop]
		stopFields := map[string]interface{}{"passed": true, "actual_time": now}
		if err := s.repo.UpdateStopFields(tx, current.ID, stopFields); err != nil {
			return err
		}

		fields := map[string]interface{}{"current_stop": next}
		if next >= len(journey.Stops) {
			fields["status"] = models.StatusCompleted
			fields["end_date"] = now
		} else {
			fields["status"] = models.StatusOngoing
			fields["end_date"] = nil
		}
		return s.repo.UpdateJourneyFields(tx, id, fields)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance journey: %w", err)
	}

	updated, err := s.repo.GetJourneyByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload journey: %w", err)
	}

	s.bus.Publish(realtime.TopicJourneyUpdated, updated)
	s.logger.LogJourney(id, actor.ID, "advance", string(updated.Status), true)
	return updated, nil
}

// PositionInput advances the train to a stop index.
type PositionInput struct {
	CurrentStop int        `json:"current_stop"`
	ActualTime  *time.Time `json:"actual_time"`
	Notes       *string    `json:"notes"`
}

// UpdatePosition moves the train to the given stop index. Ownership-gated,
// not role-gated. The target and every earlier stop become passed, later
// stops are reset, and reaching the last stop completes the journey.
func (s *Service) UpdatePosition(actor *models.User, id uint, in PositionInput) (*models.Journey, error) {
	journey, err := s.loadJourney(id)
	if err != nil {
		return nil, err
	}

	if journey.UserID != actor.ID {
		return nil, fmt.Errorf("only the journey owner can update the position: %w", apperr.ErrForbidden)
	}

	if in.CurrentStop < 0 || in.CurrentStop >= len(journey.Stops) {
		return nil, fmt.Errorf("stop index %d out of range: %w", in.CurrentStop, apperr.ErrInvalidInput)
	}

	now := s.now()
	actualTime := now
	if in.ActualTime != nil {
		actualTime = *in.ActualTime
	}
	lastIndex := len(journey.Stops) - 1

	err = s.repo.DB().Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"current_stop": in.CurrentStop,
		}
		if in.Notes != nil {
			fields["notes"] = *in.Notes
		}
		if in.CurrentStop == lastIndex {
			fields["status"] = models.StatusCompleted
			fields["end_date"] = now
		} else {
			fields["status"] = models.StatusOngoing
		}
		if err := s.repo.UpdateJourneyFields(tx, id, fields); err != nil {
			return err
		}

		if err := s.repo.MarkStopsPassedThrough(tx, id, in.CurrentStop, actualTime); err != nil {
			return err
		}
		if err := s.repo.ResetStopsAfter(tx, id, in.CurrentStop); err != nil {
			return err
		}

		if in.Notes != nil {
			current := journey.Stops[in.CurrentStop]
			if err := s.repo.UpdateStopFields(tx, current.ID, map[string]interface{}{"notes": *in.Notes}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update position: %w", err)
	}

	updated, err := s.repo.GetJourneyByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload journey: %w", err)
	}

	s.bus.Publish(realtime.TopicJourneyUpdated, updated)
	s.logger.LogJourney(id, actor.ID, "position", string(updated.Status), true)
	return updated, nil
}

// UpdateStatus sets the lifecycle status explicitly. Owner or admin.
// COMPLETED and CANCELLED stamp the end date; COMPLETED also marks every
// stop passed; entering ONGOING resets the position.
func (s *Service) UpdateStatus(actor *models.User, id uint, status models.Status) (*models.Journey, error) {
	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q: %w", status, apperr.ErrInvalidInput)
	}

	journey, err := s.loadJourney(id)
	if err != nil {
		return nil, err
	}

	if journey.UserID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("only the owner or an admin can change the status: %w", apperr.ErrForbidden)
	}

	now := s.now()
	err = s.repo.DB().Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{"status": status}
		switch status {
		case models.StatusCompleted, models.StatusCancelled:
			fields["end_date"] = now
		default:
			fields["end_date"] = nil
		}
		if status == models.StatusOngoing && journey.Status != models.StatusOngoing {
			fields["current_stop"] = 0
		}
		if err := s.repo.UpdateJourneyFields(tx, id, fields); err != nil {
			return err
		}
		if status == models.StatusCompleted {
			return s.repo.MarkAllStopsPassed(tx, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	updated, err := s.repo.GetJourneyByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload journey: %w", err)
	}

	s.bus.Publish(realtime.TopicJourneyUpdated, updated)
	s.logger.LogJourney(id, actor.ID, "status", string(status), true)
	return updated, nil
}

// DeletedEvent is the journey:deleted payload.
type DeletedEvent struct {
	ID uint `json:"id"`
}

// Delete removes a journey and its stops. Admin only.
func (s *Service) Delete(actor *models.User, id uint) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("only admins can delete journeys: %w", apperr.ErrForbidden)
	}

	if _, err := s.loadJourney(id); err != nil {
		return err
	}

	if err := s.repo.DeleteJourney(id); err != nil {
		return fmt.Errorf("failed to delete journey: %w", err)
	}

	s.bus.Publish(realtime.TopicJourneyDeleted, DeletedEvent{ID: id})
	s.logger.LogJourney(id, actor.ID, "delete", "", true)
	return nil
}

// FollowerEvent is the payload of follower added/removed events.
type FollowerEvent struct {
	JourneyID uint   `json:"journey_id"`
	UserID    uint   `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
}

// Follow subscribes the actor to a journey. Idempotent: a repeat call
// returns already=true instead of an error.
func (s *Service) Follow(actor *models.User, id uint) (already bool, err error) {
	journey, err := s.loadJourney(id)
	if err != nil {
		return false, err
	}

	following, err := s.repo.IsFollower(id, actor.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check follower: %w", err)
	}
	if following {
		return true, nil
	}

	if !journey.IsPublic && !actor.IsAdmin() && journey.UserID != actor.ID {
		return false, fmt.Errorf("journey %d is not public: %w", id, apperr.ErrForbidden)
	}

	if err := s.repo.AddFollower(id, actor.ID); err != nil {
		return false, fmt.Errorf("failed to follow: %w", err)
	}

	s.bus.Publish(realtime.TopicFollowerAdded, FollowerEvent{
		JourneyID: id,
		UserID:    actor.ID,
		UserName:  actor.Name,
	})
	return false, nil
}

// Unfollow removes the actor from the journey's followers. Idempotent.
func (s *Service) Unfollow(actor *models.User, id uint) (already bool, err error) {
	if _, err := s.loadJourney(id); err != nil {
		return false, err
	}

	following, err := s.repo.IsFollower(id, actor.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check follower: %w", err)
	}
	if !following {
		return true, nil
	}

	if err := s.repo.RemoveFollower(id, actor.ID); err != nil {
		return false, fmt.Errorf("failed to unfollow: %w", err)
	}

	s.bus.Publish(realtime.TopicFollowerRemoved, FollowerEvent{
		JourneyID: id,
		UserID:    actor.ID,
	})
	return false, nil
}

// SweepResult reports how many journeys a sweep transitioned.
type SweepResult struct {
	Started   int `json:"started"`
	Completed int `json:"completed"`
}

// Sweep re-evaluates every journey against wall-clock time: SCHEDULED
// journeys past their start date with an upcoming stop become ONGOING, and
// ONGOING journeys whose every stop time has elapsed become COMPLETED. The
// conditional flip makes concurrent sweeps idempotent; a journey already
// moved by a racing sweep is skipped.
func (s *Service) Sweep(now time.Time) (SweepResult, error) {
	var result SweepResult

	due, err := s.repo.FindScheduledDue(now)
	if err != nil {
		return result, fmt.Errorf("failed to find due journeys: %w", err)
	}
	for i := range due {
		flipped, err := s.repo.FlipJourneyStatus(due[i].ID, models.StatusScheduled, models.StatusOngoing, nil)
		if err != nil {
			return result, fmt.Errorf("failed to start journey %d: %w", due[i].ID, err)
		}
		if !flipped {
			continue
		}
		result.Started++
		s.publishSwept(due[i].ID)
	}

	elapsed, err := s.repo.FindOngoingElapsed(now)
	if err != nil {
		return result, fmt.Errorf("failed to find elapsed journeys: %w", err)
	}
	for i := range elapsed {
		flipped, err := s.repo.FlipJourneyStatus(elapsed[i].ID, models.StatusOngoing, models.StatusCompleted, &now)
		if err != nil {
			return result, fmt.Errorf("failed to complete journey %d: %w", elapsed[i].ID, err)
		}
		if !flipped {
			continue
		}
		if err := s.repo.MarkAllStopsPassed(s.repo.DB().DB, elapsed[i].ID); err != nil {
			return result, fmt.Errorf("failed to mark stops passed for journey %d: %w", elapsed[i].ID, err)
		}
		result.Completed++
		s.publishSwept(elapsed[i].ID)
	}

	return result, nil
}

func (s *Service) publishSwept(id uint) {
	updated, err := s.repo.GetJourneyByID(id)
	if err != nil {
		s.logger.WithError(err).WithField("journey_id", id).Error("Failed to reload swept journey")
		return
	}
	s.bus.Publish(realtime.TopicJourneyUpdated, updated)
}

func (s *Service) loadJourney(id uint) (*models.Journey, error) {
	journey, err := s.repo.GetJourneyByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("journey %d: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load journey: %w", err)
	}
	return journey, nil
}
