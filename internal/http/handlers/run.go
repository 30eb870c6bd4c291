package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/http/response"
	"github.com/yungbote/marketlake/internal/services"
)

type RunHandler struct {
	runs services.RunService
}

func NewRunHandler(runs services.RunService) *RunHandler {
	return &RunHandler{runs: runs}
}

type startRunRequest struct {
	// Day is YYYY-MM-DD; empty means today (UTC).
	Day string `json:"day"`
}

// POST /api/runs
func (h *RunHandler) StartRun(c *gin.Context) {
	var req startRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	day, err := pipeline.ParseDay(req.Day, nil)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_day", err)
		return
	}
	run, err := h.runs.Start(c.Request.Context(), day, services.TriggerAPI)
	if errors.Is(err, services.ErrRunInProgress) {
		response.RespondError(c, http.StatusConflict, "run_in_progress", err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "start_run_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"run": run})
}

// GET /api/runs?day=&limit=
func (h *RunHandler) ListRuns(c *gin.Context) {
	day := c.Query("day")
	if day != "" {
		if _, err := pipeline.ParseDay(day, nil); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_day", err)
			return
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.runs.List(c.Request.Context(), day, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_runs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"runs": runs})
}

// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	view, err := h.runs.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_run_failed", err)
		return
	}
	if view == nil {
		response.RespondError(c, http.StatusNotFound, "run_not_found", fmt.Errorf("run %s not found", id))
		return
	}
	response.RespondOK(c, view)
}
