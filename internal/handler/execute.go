package handler

import (
	"errors"
	"net/http"
	"strings"

	"suburbiq/internal/model"
	"suburbiq/internal/plan"
	"suburbiq/internal/schema"
	"suburbiq/internal/service"

	"github.com/gin-gonic/gin"
)

// ExecuteHandler runs caller-supplied plans directly against the engine
type ExecuteHandler struct {
	normalizer *plan.Normalizer
	registry   *schema.Registry
	engine     *service.Engine
}

// NewExecuteHandler creates a new execute handler
func NewExecuteHandler(normalizer *plan.Normalizer, registry *schema.Registry, engine *service.Engine) *ExecuteHandler {
	return &ExecuteHandler{
		normalizer: normalizer,
		registry:   registry,
		engine:     engine,
	}
}

// Execute handles POST /api/v1/execute
func (h *ExecuteHandler) Execute(c *gin.Context) {
	var req model.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + bindError(err)})
		return
	}

	raw, err := h.normalizer.DecodeMap(req.Plan)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// an API caller names the suburb itself, so it grounds its own plan
	p := h.normalizer.Normalize(raw, req.Utterance, []string{raw.Suburb})
	if state := strings.ToUpper(raw.State); !p.StateDetected && h.isState(state) {
		p.State = state
		p.StateDetected = true
	}

	bundle, err := h.engine.Execute(c.Request.Context(), p, req.Nearby)
	if err != nil {
		var missing *service.MissingSuburbError
		if errors.As(err, &missing) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "plan": p})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Execution failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, bundle)
}

func (h *ExecuteHandler) isState(abbr string) bool {
	for _, s := range h.registry.States() {
		if s == abbr {
			return true
		}
	}
	return false
}
