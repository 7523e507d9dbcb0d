package webserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ItsMariusBC/TrainStats/pkg/journeys"
	"github.com/ItsMariusBC/TrainStats/pkg/models"
	"github.com/ItsMariusBC/TrainStats/pkg/utils"
)

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid id"))
		return 0, false
	}
	return uint(id), true
}

// handleListJourneys returns the journeys visible to the caller
func (s *Server) handleListJourneys(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	in := journeys.ListInput{
		Status:           c.Query("status"),
		Search:           c.Query("search"),
		IncludeCompleted: c.Query("include_completed") == "true",
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			in.Limit = n
		}
	}
	if from := c.Query("start_date_from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, utils.NewErrorResponse("start_date_from must be RFC3339"))
			return
		}
		in.StartDateFrom = &t
	}

	views, err := s.journeys.List(user, in)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(views, ""))
}

// handleCreateJourney creates a journey with its ordered stops
func (s *Server) handleCreateJourney(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	var in journeys.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid journey payload: "+err.Error()))
		return
	}

	journey, err := s.journeys.Create(user, in)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.NewSuccessResponse(journey, "Journey created"))
}

// handleGetJourney returns one journey with derived metrics
func (s *Server) handleGetJourney(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	view, err := s.journeys.Get(user, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(view, ""))
}

// handleUpdateJourney applies a partial update to a journey and its stops
func (s *Server) handleUpdateJourney(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var in journeys.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid journey payload: "+err.Error()))
		return
	}

	journey, err := s.journeys.Update(user, id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(journey, "Journey updated"))
}

// handleDeleteJourney deletes a journey and its stops
func (s *Server) handleDeleteJourney(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := s.journeys.Delete(user, id); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(nil, "Journey deleted"))
}

// handleUpdatePosition advances the train to a stop index
func (s *Server) handleUpdatePosition(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var in journeys.PositionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid position payload: "+err.Error()))
		return
	}

	journey, err := s.journeys.UpdatePosition(user, id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(journey, "Position updated"))
}

// StatusRequest carries an explicit status transition
type StatusRequest struct {
	Status models.Status `json:"status" binding:"required"`
}

// handleUpdateStatus sets the lifecycle status explicitly
func (s *Server) handleUpdateStatus(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Status is required"))
		return
	}

	journey, err := s.journeys.UpdateStatus(user, id, req.Status)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(journey, "Status updated"))
}

// handleFollow subscribes the caller to a journey
func (s *Server) handleFollow(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	already, err := s.journeys.Follow(user, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(gin.H{"already": already}, "Following"))
}

// handleUnfollow removes the caller from a journey's followers
func (s *Server) handleUnfollow(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	already, err := s.journeys.Unfollow(user, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(gin.H{"already": already}, "Unfollowed"))
}

// handleCheckStatus runs a status sweep on demand. The background sweeper
// normally covers this; the endpoint lets a client force a re-evaluation
// when it suspects the dashboard is stale.
func (s *Server) handleCheckStatus(c *gin.Context) {
	if _, err := s.getCurrentUser(c); err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	result, err := s.journeys.Sweep(time.Now())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(result, "Status check complete"))
}

// AdminJourneyPatchRequest is the admin dashboard patch payload. NextStop
// advances the train one stop; the embedded fields apply an ordinary
// partial update.
type AdminJourneyPatchRequest struct {
	NextStop *bool `json:"next_stop"`
	journeys.UpdateInput
}

// handleAdminPatchJourney either advances the train one stop or applies a
// partial update, depending on the payload
func (s *Server) handleAdminPatchJourney(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req AdminJourneyPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid journey payload: "+err.Error()))
		return
	}

	var journey *models.Journey
	if req.NextStop != nil && *req.NextStop {
		journey, err = s.journeys.Advance(user, id)
	} else {
		journey, err = s.journeys.Update(user, id, req.UpdateInput)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(journey, "Journey updated"))
}

// SweeperSettingsRequest adjusts the background sweep loop
type SweeperSettingsRequest struct {
	AutoUpdateEnabled    *bool `json:"auto_update_enabled"`
	CheckIntervalSeconds *int  `json:"check_interval_seconds"`
}

// handleSweeperSettings updates the sweep loop settings at runtime
func (s *Server) handleSweeperSettings(c *gin.Context) {
	var req SweeperSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid settings payload: "+err.Error()))
		return
	}
	if req.CheckIntervalSeconds != nil && *req.CheckIntervalSeconds <= 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("check_interval_seconds must be positive"))
		return
	}

	settings := s.sweeper.UpdateSettings(req.AutoUpdateEnabled, req.CheckIntervalSeconds)
	c.JSON(http.StatusOK, utils.NewSuccessResponse(gin.H{"settings": settings, "updated": true}, "Sweeper settings updated"))
}

// handleAdminListJourneys returns every journey for the admin dashboard
func (s *Server) handleAdminListJourneys(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	all, err := s.journeys.ListAll(user)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(all, ""))
}
