package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"signalscore/internal/repository"
)

// ScoreHandler serves persisted score rows to downstream consumers.
// Liveness markers never appear in the listing.
type ScoreHandler struct {
	Repo repository.Repository
}

func (h *ScoreHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/scores", h.listScores)
}

func (h *ScoreHandler) listScores(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var signalID uint64
	if raw := strings.TrimSpace(c.Query("signal_strength_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid signal_strength_id", nil)
			return
		}
		signalID = parsed
	}

	kind := strings.TrimSpace(c.Query("kind"))
	if kind != "" && kind != "raw" && kind != "smart" {
		Error(c, http.StatusBadRequest, "kind must be raw or smart", nil)
		return
	}

	items, err := h.Repo.ListScores(c.Request.Context(), repository.ListScoresParams{
		UserID:           strings.TrimSpace(c.Query("user_id")),
		ProjectID:        strings.TrimSpace(c.Query("project_id")),
		SignalStrengthID: signalID,
		Kind:             kind,
		Limit:            limit,
		Offset:           offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}
