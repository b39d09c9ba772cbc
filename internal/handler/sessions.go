package handler

import (
	"net/http"

	"suburbiq/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHandler exposes per-session conversational context
type SessionHandler struct {
	contexts store.ContextStore
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(contexts store.ContextStore) *SessionHandler {
	return &SessionHandler{
		contexts: contexts,
	}
}

// Get handles GET /api/v1/sessions/:id/context
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	ctx, err := h.contexts.Get(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load context: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "context": ctx})
}

// Reset handles DELETE /api/v1/sessions/:id/context
func (h *SessionHandler) Reset(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	if err := h.contexts.Reset(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset context: " + err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return "", false
	}
	return id, true
}
