package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/marketlake/internal/http/response"
	"github.com/yungbote/marketlake/internal/realtime"
)

type RunEventsHandler struct {
	hub *realtime.Hub
}

func NewRunEventsHandler(hub *realtime.Hub) *RunEventsHandler {
	return &RunEventsHandler{hub: hub}
}

// GET /api/runs/events
func (h *RunEventsHandler) StreamAll(c *gin.Context) {
	h.stream(c, realtime.AllRuns)
}

// GET /api/runs/:id/events
func (h *RunEventsHandler) StreamRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	h.stream(c, id.String())
}

func (h *RunEventsHandler) stream(c *gin.Context, channel string) {
	client := h.hub.NewClient()
	h.hub.AddChannel(client, channel)
	defer h.hub.CloseClient(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
