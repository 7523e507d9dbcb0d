package webserver

import (
	"github.com/ItsMariusBC/TrainStats/pkg/models"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api")
	{
		// Authentication
		auth := api.Group("/auth")
		{
			auth.POST("/login", s.handleLogin)
			auth.POST("/logout", s.handleLogout)
			auth.GET("/me", s.authMiddleware(), s.handleMe)
		}

		// Registration by invitation, no session required
		register := api.Group("/register")
		{
			register.GET("/check-invitation", s.handleCheckInvitation)
			register.POST("/:token", s.handleRegister)
		}

		// Authenticated routes
		protected := api.Group("")
		protected.Use(s.authMiddleware())
		{
			journeyRoutes := protected.Group("/journeys")
			{
				journeyRoutes.GET("", s.handleListJourneys)
				journeyRoutes.POST("", s.handleCreateJourney)
				journeyRoutes.PATCH("", s.requireRole(models.RoleAdmin), s.handleSweeperSettings)
				journeyRoutes.POST("/check-status", s.handleCheckStatus)
				journeyRoutes.GET("/:id", s.handleGetJourney)
				journeyRoutes.PATCH("/:id", s.handleUpdateJourney)
				journeyRoutes.DELETE("/:id", s.handleDeleteJourney)
				journeyRoutes.PATCH("/:id/position", s.handleUpdatePosition)
				journeyRoutes.PATCH("/:id/status", s.handleUpdateStatus)
				journeyRoutes.POST("/:id/follow", s.handleFollow)
				journeyRoutes.DELETE("/:id/follow", s.handleUnfollow)
			}

			userRoutes := protected.Group("/users")
			{
				userRoutes.GET("/profile", s.handleGetProfile)
				userRoutes.PATCH("/profile", s.handleUpdateProfile)
				userRoutes.PATCH("/password", s.handleChangePassword)
			}

			// Realtime attach ticket
			protected.GET("/ws/ticket", s.handleWSTicket)

			// Admin area
			admin := protected.Group("/admin")
			admin.Use(s.requireRole(models.RoleAdmin))
			{
				admin.GET("/journeys", s.handleAdminListJourneys)
				admin.POST("/journeys", s.handleCreateJourney)
				admin.PATCH("/journeys/:id", s.handleAdminPatchJourney)
				admin.DELETE("/journeys/:id", s.handleDeleteJourney)

				admin.GET("/invites", s.handleListInvites)
				admin.POST("/invites", s.handleCreateInvite)
				admin.PATCH("/invites", s.handleUpdateInvite)
				admin.DELETE("/invites", s.handleDeleteInvite)

				admin.GET("/invitations", s.handleListInvites)
				admin.POST("/invitations", s.handleCreateEmailInvitation)

				admin.GET("/family-code", s.handleGetFamilyCode)
				admin.POST("/family-code", s.handleResetFamilyCode)
				admin.DELETE("/family-code", s.handleRevokeFamilyCode)

				admin.GET("/users", s.handleListUsers)
				admin.PATCH("/users/:id", s.handleUpdateUserRole)
			}
		}

		// Websocket attach authenticates with a ticket, not the session, so
		// it stays outside the session-auth group.
		api.GET("/ws", s.handleWS)
	}
}
