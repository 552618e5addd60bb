package server

import (
	"net/http"

	"opschat/domain/event"
	"opschat/sink"

	"github.com/gin-gonic/gin"
)

// handleWS upgrades the request and binds the socket to the authenticated
// identity for its entire lifetime. The handler blocks on the read loop;
// when the socket breaks for any reason the connection is unregistered,
// which is also what flips presence back to offline for the last device.
func (s *Server) handleWS(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response.
		s.log.Debug("Websocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}

	conn := sink.NewWSConn(s.log, identity, ws, s.connBufferSize)
	conn.Start()
	s.service.Attach(c.Request.Context(), conn)
	defer s.service.Detach(c.Request.Context(), conn)

	ctx := c.Request.Context()
	conn.ReadLoop(func(signal event.Inbound) {
		switch signal.Type {
		case "read":
			if _, err := s.service.MarkRead(ctx, identity.UserID, signal.With); err != nil {
				// No error frames over the socket; the signal is simply lost
				// and the client may retry.
				s.log.Warn("Read signal failed", "user_id", identity.UserID,
					"with", signal.With, "error", err)
			}
		case "message":
			if _, err := s.service.Send(ctx, identity, signal.To, signal.Text,
				signal.Attachments, conn.ID()); err != nil {
				s.log.Warn("Socket send rejected", "user_id", identity.UserID,
					"to", signal.To, "error", err)
			}
		default:
			s.log.Debug("Unknown client frame type", "type", signal.Type,
				"user_id", identity.UserID)
		}
	})
}
