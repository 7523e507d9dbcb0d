package webserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ItsMariusBC/TrainStats/pkg/realtime"
	"github.com/ItsMariusBC/TrainStats/pkg/utils"
)

// handleWSTicket issues a short-lived ticket the browser presents when
// opening the websocket. Browsers cannot set headers on websocket requests,
// so the session cannot authenticate the upgrade directly.
func (s *Server) handleWSTicket(c *gin.Context) {
	user, err := s.getCurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Authentication required"))
		return
	}

	ticket, err := s.tickets.IssueTicket(user.ID, string(user.Role))
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue websocket ticket")
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse("Internal server error"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse(gin.H{"ticket": ticket}, ""))
}

// handleWS upgrades the connection and attaches it to the hub. The ticket
// comes in as a query parameter.
func (s *Server) handleWS(c *gin.Context) {
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Ticket is required"))
		return
	}

	claims, err := s.tickets.ValidateTicket(ticket)
	if err != nil {
		s.logger.LogSecurity("invalid_ws_ticket", 0, c.ClientIP(), map[string]interface{}{
			"error": err.Error(),
		})
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("Invalid ticket"))
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkWSOrigin,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	client := realtime.NewClient(s.hub, conn, s.logger, claims.UserID)
	client.Start()
}

func (s *Server) checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range strings.Split(s.config.Security.AllowedOrigins, ",") {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}
