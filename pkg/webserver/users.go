package webserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/ItsMariusBC/TrainStats/pkg/models"
	"github.com/ItsMariusBC/TrainStats/pkg/utils"
)

// handleGetProfile returns the caller's account
func (s *Server) handleGetProfile(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(user, ""))
}

// UpdateProfileRequest represents the profile patch payload
type UpdateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// handleUpdateProfile updates the caller's name or email
func (s *Server) handleUpdateProfile(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid profile payload: "+err.Error()))
		return
	}

	if req.Name != nil {
		name := s.validator.SanitizeInput(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Name must not be empty"))
			return
		}
		user.Name = name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if !s.validator.ValidateEmail(email) {
			c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Invalid email"))
			return
		}
		user.Email = email
	}

	if err := s.repo.UpdateUser(user); err != nil {
		s.logger.WithError(err).Error("Failed to update profile")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(user, "Profile updated"))
}

// ChangePasswordRequest represents the password change payload
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// handleChangePassword verifies the current password and sets a new one
func (s *Server) handleChangePassword(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Current and new password are required"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		s.logger.LogAuth(user.ID, user.Email, "change_password", false)
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Current password is incorrect"))
		return
	}

	if len(req.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("New password must be at least 8 characters"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.config.Security.BcryptCost)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash password")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	user.Password = string(hash)
	if err := s.repo.UpdateUser(user); err != nil {
		s.logger.WithError(err).Error("Failed to update password")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	s.logger.LogAuth(user.ID, user.Email, "change_password", true)
	c.JSON(http.StatusOK, utils.NewSuccessResponse(nil, "Password changed"))
}

// handleListUsers returns paginated accounts for the admin dashboard
func (s *Server) handleListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	total, err := s.repo.CountUsers()
	if err != nil {
		s.logger.WithError(err).Error("Failed to count users")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	pagination := utils.NewPagination(page, limit, total)
	users, err := s.repo.ListUsers(pagination.Limit, pagination.GetOffset())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list users")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	c.JSON(http.StatusOK, utils.NewPaginatedResponse(users, pagination, ""))
}

// UpdateUserRoleRequest represents the role change payload
type UpdateUserRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// handleUpdateUserRole changes another account's role. Admins cannot demote
// themselves, so the instance always keeps at least one admin.
func (s *Server) handleUpdateUserRole(c *gin.Context) {
	actor, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateUserRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Role is required"))
		return
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleUser {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Unknown role"))
		return
	}

	if id == actor.ID && req.Role != models.RoleAdmin {
		c.JSON(http.StatusConflict, utils.NewErrorResponse("Admins cannot demote themselves"))
		return
	}

	target, err := s.repo.GetUserByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.NewErrorResponse("User not found"))
		return
	}

	target.Role = req.Role
	if err := s.repo.UpdateUser(target); err != nil {
		s.logger.WithError(err).Error("Failed to update role")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	s.logger.LogSecurity("role_changed", actor.ID, c.ClientIP(), map[string]interface{}{
		"target_id": target.ID,
		"role":      string(req.Role),
	})
	c.JSON(http.StatusOK, utils.NewSuccessResponse(target, "Role updated"))
}
