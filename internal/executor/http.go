package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/ctxutil"
	"github.com/yungbote/marketlake/internal/platform/httpx"
)

// Error codes shared with the job endpoint.
const (
	CodeJobFailed    = "job_failed"
	CodeJobFatal     = "job_fatal"
	CodeJobTransient = "job_transient"
	CodeUnknownJob   = "unknown_job"
	CodeInvalidInput = "invalid_input"
)

// RunIDHeader carries the orchestrator run id to the job process.
const RunIDHeader = "X-Run-ID"

// InvokeResponse is the job endpoint's success body.
type InvokeResponse struct {
	Job    string             `json:"job"`
	Output pipeline.JobOutput `json:"output"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// HTTPInvoker calls POST <base>/jobs/<name>/invoke on a job runner.
type HTTPInvoker struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPInvoker(baseURL string, timeout time.Duration) (*HTTPInvoker, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing job runner url")
	}
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &HTTPInvoker{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}, nil
}

func (h *HTTPInvoker) Invoke(ctx context.Context, job string, in pipeline.JobInput) (pipeline.JobOutput, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return pipeline.JobOutput{}, err
	}
	endpoint := h.baseURL + "/jobs/" + url.PathEscape(job) + "/invoke"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return pipeline.JobOutput{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if runID := ctxutil.RunID(ctx); runID != "" {
		req.Header.Set(RunIDHeader, runID)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return pipeline.JobOutput{}, httpx.Classify("invoke "+job, err)
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return pipeline.JobOutput{}, httpx.Classify("invoke "+job, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out InvokeResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return pipeline.JobOutput{}, fmt.Errorf("invoke %s: decode: %w", job, err)
		}
		return out.Output, nil
	}

	var env errorEnvelope
	_ = json.Unmarshal(raw, &env)
	msg := env.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	switch env.Error.Code {
	case CodeJobFailed:
		return pipeline.JobOutput{}, &pipeline.ExecutionError{Job: job, Status: "failed", Message: msg}
	case CodeJobFatal, CodeUnknownJob, CodeInvalidInput:
		return pipeline.JobOutput{}, &pipeline.ExecutionError{Job: job, Status: "failed", Message: msg, Fatal: true}
	case CodeJobTransient:
		return pipeline.JobOutput{}, pipeline.Transient("invoke "+job, fmt.Errorf("%s", msg))
	}
	return pipeline.JobOutput{}, httpx.Classify("invoke "+job, &httpx.StatusError{Service: "jobrunner", StatusCode: resp.StatusCode, Body: msg})
}
