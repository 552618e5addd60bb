package server

import (
	"net/http"

	"opschat/domain"
	"opschat/errors"

	"github.com/gin-gonic/gin"
)

type postMessageRequest struct {
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments"`
}

// getMessages returns the full ordered history between the caller and the
// counterpart.
func (s *Server) getMessages(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	messages, err := s.service.History(c.Request.Context(), identity.UserID, c.Param("counterpartId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// postMessage runs the ingestion pipeline for a REST caller and returns
// the persisted message, delivery stamp included when the recipient was
// live.
func (s *Server) postMessage(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_text", "message": "malformed body"})
		return
	}
	msg, err := s.service.Send(c.Request.Context(), identity, c.Param("counterpartId"),
		req.Text, req.Attachments, "")
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// getPresence reports whether a user currently holds at least one live
// connection.
func (s *Server) getPresence(c *gin.Context) {
	userID := c.Param("userId")
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": s.registry.Online(userID)})
}

func (s *Server) respondError(c *gin.Context, err error) {
	kind := errors.Kind(err)
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "path", c.FullPath(), "error", err)
		// Do not leak store internals to the caller.
		c.JSON(status, gin.H{"error": kind})
		return
	}
	c.JSON(status, gin.H{"error": kind, "message": err.Error()})
}
