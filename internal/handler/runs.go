package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signalscore/internal/engine"
)

// RunHandler exposes the engine entry point: one POST triggers one user's
// scoring pipeline run.
type RunHandler struct {
	Engine *engine.Engine
	Logger *zap.Logger
}

type runRequest struct {
	Platform           string `json:"platform"`
	UserID             string `json:"user_id"`
	ProjectID          string `json:"project_id"`
	Signal             string `json:"signal"`
	Force              bool   `json:"force"`
	TestRequestingUser string `json:"test_requesting_user"`
}

func (h *RunHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/runs", h.run)
}

func (h *RunHandler) run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}

	var testUser *string
	if trimmed := strings.TrimSpace(req.TestRequestingUser); trimmed != "" {
		testUser = &trimmed
	}
	err := h.Engine.Run(c.Request.Context(), engine.RunParams{
		Platform:           req.Platform,
		UserID:             req.UserID,
		ProjectID:          req.ProjectID,
		SignalStrengthName: req.Signal,
		Force:              req.Force,
		TestRequestingUser: testUser,
	})
	switch {
	case err == nil:
		Ok(c, gin.H{"status": "completed"}, nil)
	case errors.Is(err, engine.ErrProjectDisabled):
		Ok(c, gin.H{"status": "skipped", "reason": err.Error()}, nil)
	default:
		var cfgErr *engine.ConfigurationError
		if errors.As(err, &cfgErr) {
			Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
			return
		}
		h.Logger.Error("run failed",
			zap.String("user_id", req.UserID),
			zap.String("project_id", req.ProjectID),
			zap.Error(err))
		Error(c, http.StatusBadGateway, err.Error(), nil)
	}
}
