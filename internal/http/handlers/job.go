package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
	"github.com/yungbote/marketlake/internal/http/response"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
	"github.com/yungbote/marketlake/internal/observability"
)

// JobHandler is the job runner's invoke endpoint. Error codes match what
// executor.HTTPInvoker decodes.
type JobHandler struct {
	registry *jobrt.Registry
	metrics  *observability.Metrics
}

func NewJobHandler(registry *jobrt.Registry, metrics *observability.Metrics) *JobHandler {
	return &JobHandler{registry: registry, metrics: metrics}
}

// POST /jobs/:name/invoke
func (h *JobHandler) Invoke(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if _, ok := h.registry.Get(name); !ok {
		response.RespondError(c, http.StatusNotFound, executor.CodeUnknownJob, fmt.Errorf("unknown job %q", name))
		return
	}
	var in pipeline.JobInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			response.RespondError(c, http.StatusBadRequest, executor.CodeInvalidInput, err)
			return
		}
	}
	if in.Day != "" {
		if _, err := pipeline.ParseDay(in.Day, nil); err != nil {
			response.RespondError(c, http.StatusBadRequest, executor.CodeInvalidInput, err)
			return
		}
	}

	start := time.Now()
	out, err := h.registry.Execute(c.Request.Context(), name, in)
	h.metrics.ObserveJob(name, err, time.Since(start))
	if err != nil {
		status, code := classifyJobError(err)
		response.RespondError(c, status, code, err)
		return
	}
	response.RespondOK(c, executor.InvokeResponse{Job: name, Output: out})
}

func classifyJobError(err error) (int, string) {
	if pipeline.IsTransient(err) {
		return http.StatusServiceUnavailable, executor.CodeJobTransient
	}
	var ee *pipeline.ExecutionError
	if errors.As(err, &ee) && !ee.Fatal {
		return http.StatusUnprocessableEntity, executor.CodeJobFailed
	}
	if !pipeline.IsRetryable(err) {
		return http.StatusUnprocessableEntity, executor.CodeJobFatal
	}
	return http.StatusUnprocessableEntity, executor.CodeJobFailed
}
