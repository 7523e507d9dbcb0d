package webserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ItsMariusBC/TrainStats/pkg/invitations"
	"github.com/ItsMariusBC/TrainStats/pkg/utils"
)

// handleListInvites returns paginated invitations, newest first
func (s *Server) handleListInvites(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	list, pagination, err := s.invitations.List(user, page, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPaginatedResponse(list, pagination, ""))
}

// CreateInviteRequest represents the invite creation payload
type CreateInviteRequest struct {
	Email         *string `json:"email"`
	Role          string  `json:"role"`
	MaxUses       int     `json:"max_uses"`
	ExpiresInDays int     `json:"expires_in_days"`
}

// handleCreateInvite creates a short shareable invite token
func (s *Server) handleCreateInvite(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid invite payload: "+err.Error()))
		return
	}

	invitation, err := s.invitations.Create(user, invitations.CreateInput{
		Email:         req.Email,
		Role:          req.Role,
		MaxUses:       req.MaxUses,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.NewSuccessResponse(invitation, "Invite created"))
}

// UpdateInviteRequest patches invite limits. The target invitation is named
// in the body, not the path.
type UpdateInviteRequest struct {
	ID        uint       `json:"id" binding:"required"`
	MaxUses   *int       `json:"max_uses"`
	UsesLeft  *int       `json:"uses_left"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// handleUpdateInvite patches an invitation's limits
func (s *Server) handleUpdateInvite(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	var req UpdateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid invite payload: "+err.Error()))
		return
	}

	invitation, err := s.invitations.Update(user, req.ID, invitations.UpdateInput{
		MaxUses:   req.MaxUses,
		UsesLeft:  req.UsesLeft,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(invitation, "Invite updated"))
}

// handleDeleteInvite deletes an unredeemed invitation named by the id query
// parameter
func (s *Server) handleDeleteInvite(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, err := strconv.ParseUint(c.Query("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid id"))
		return
	}

	if err := s.invitations.Delete(user, uint(id)); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(nil, "Invite deleted"))
}

// EmailInvitationRequest represents the single-recipient invitation payload
type EmailInvitationRequest struct {
	Email string `json:"email" binding:"required"`
}

// handleCreateEmailInvitation creates a registration link bound to one email
func (s *Server) handleCreateEmailInvitation(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	var req EmailInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Email is required"))
		return
	}

	invitation, err := s.invitations.CreateForEmail(user, req.Email)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.NewSuccessResponse(invitation, "Invitation created"))
}

// handleGetFamilyCode returns the active family code, minting one if needed
func (s *Server) handleGetFamilyCode(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	code, err := s.invitations.FamilyCode(user)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(code, ""))
}

// handleResetFamilyCode revokes the current family code and mints a new one
func (s *Server) handleResetFamilyCode(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	code, err := s.invitations.ResetFamilyCode(user)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(code, "Family code reset"))
}

// handleRevokeFamilyCode disables all family codes
func (s *Server) handleRevokeFamilyCode(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	if err := s.invitations.RevokeFamilyCode(user); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(nil, "Family code revoked"))
}
