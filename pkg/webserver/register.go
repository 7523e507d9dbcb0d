package webserver

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/ItsMariusBC/TrainStats/pkg/invitations"
	"github.com/ItsMariusBC/TrainStats/pkg/utils"
)

// handleCheckInvitation validates an invitation token before the signup
// form is shown. ?token= is required, ?email= when the invitation is bound
// to an address.
func (s *Server) handleCheckInvitation(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Token is required"))
		return
	}

	var email *string
	if q := c.Query("email"); q != "" {
		email = &q
	}

	invitation, err := s.invitations.Check(token, email)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(gin.H{
		"valid":          true,
		"email":          invitation.Email,
		"role":           invitation.Role,
		"is_family_code": invitation.IsFamilyCode,
		"expires_at":     invitation.ExpiresAt,
		"uses_left":      invitation.UsesLeft,
	}, ""))
}

// RegisterRequest represents the signup payload
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleRegister redeems the invitation token from the URL, creates the
// account and opens a session for it.
func (s *Server) handleRegister(c *gin.Context) {
	token := c.Param("token")

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Name, email and password are required"))
		return
	}

	user, err := s.invitations.Redeem(token, invitations.RedeemInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		s.logger.WithError(err).Error("Failed to save session after registration")
	}

	s.logger.LogAuth(user.ID, user.Email, "register", true)
	c.JSON(http.StatusCreated, utils.NewSuccessResponse(gin.H{"user": user}, "Account created"))
}
