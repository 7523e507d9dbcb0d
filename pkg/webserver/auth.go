package webserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ItsMariusBC/TrainStats/pkg/apperr"
	"github.com/ItsMariusBC/TrainStats/pkg/models"
	"github.com/ItsMariusBC/TrainStats/pkg/utils"
)

const sessionUserKey = "user_id"

// LoginRequest represents the login payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin authenticates credentials and opens a session
func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse("Email and password are required"))
		return
	}

	user, err := s.repo.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.LogAuth(0, req.Email, "login", false)
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Invalid credentials"))
			return
		}
		s.logger.WithError(err).Error("Failed to look up user")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		s.logger.LogAuth(user.ID, user.Email, "login", false)
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Invalid credentials"))
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		s.logger.WithError(err).Error("Failed to save session")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	s.logger.LogAuth(user.ID, user.Email, "login", true)
	c.JSON(http.StatusOK, utils.NewSuccessResponse(gin.H{
		"user": user,
	}, "Logged in"))
}

// handleLogout clears the session
func (s *Server) handleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		s.logger.WithError(err).Error("Failed to clear session")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(nil, "Logged out"))
}

// handleMe returns the authenticated account
func (s *Server) handleMe(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Not authenticated"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(gin.H{"user": user}, ""))
}

// authMiddleware resolves the session to a user
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		raw := session.Get(sessionUserKey)
		if raw == nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
			c.Abort()
			return
		}

		userID, ok := raw.(uint)
		if !ok {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
			c.Abort()
			return
		}

		user, err := s.repo.GetUserByID(userID)
		if err != nil {
			s.logger.LogSecurity("session_user_not_found", userID, c.ClientIP(), map[string]interface{}{
				"error": err.Error(),
			})
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}

// requireRole gates a route group on a role. Runs after authMiddleware.
func (s *Server) requireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.getCurrentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
			c.Abort()
			return
		}

		if user.Role != role {
			s.logger.LogSecurity("role_denied", user.ID, c.ClientIP(), map[string]interface{}{
				"required": string(role),
				"path":     c.Request.URL.Path,
			})
			c.JSON(http.StatusForbidden, utils.NewErrorResponse("Insufficient permissions"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// getCurrentUser gets the current user from context
func (s *Server) getCurrentUser(c *gin.Context) (*models.User, error) {
	user, exists := c.Get("user")
	if !exists {
		return nil, fmt.Errorf("user not found in context")
	}

	userModel, ok := user.(*models.User)
	if !ok {
		return nil, fmt.Errorf("invalid user type in context")
	}

	return userModel, nil
}

// respondError maps service errors to HTTP status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(err.Error()))
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(err.Error()))
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, utils.NewErrorResponse(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, utils.NewErrorResponse(err.Error()))
	case errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusConflict, utils.NewErrorResponse(err.Error()))
	default:
		s.logger.WithError(err).Error("Unhandled request error")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
	}
}
