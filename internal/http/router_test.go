package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/executor"
	httpH "github.com/yungbote/marketlake/internal/http/handlers"
	"github.com/yungbote/marketlake/internal/http/response"
	jobrt "github.com/yungbote/marketlake/internal/jobs/runtime"
	"github.com/yungbote/marketlake/internal/services"
)

type stubJob struct {
	name string
	run  func(*jobrt.Context) error
}

func (s stubJob) Type() string                { return s.name }
func (s stubJob) Run(jc *jobrt.Context) error { return s.run(jc) }

func jobRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := jobrt.NewRegistry(nil)
	jobs := []stubJob{
		{name: "ok", run: func(jc *jobrt.Context) error {
			jc.Succeed("done", pipeline.JobOutput{Rows: 4})
			return nil
		}},
		{name: "failing", run: func(jc *jobrt.Context) error {
			jc.Fail("write", errors.New("disk full"))
			return nil
		}},
		{name: "schema", run: func(jc *jobrt.Context) error {
			jc.Fail("write", &pipeline.SchemaMismatchError{Dataset: "silver/products"})
			return nil
		}},
		{name: "flaky", run: func(jc *jobrt.Context) error {
			jc.Fail("fetch", pipeline.Transient("fetch", errors.New("503")))
			return nil
		}},
	}
	for _, j := range jobs {
		if err := reg.Register(j); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return NewRouter(RouterConfig{
		HealthHandler: httpH.NewHealthHandler(),
		JobHandler:    httpH.NewJobHandler(reg, nil),
	})
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func TestJobInvokeEndpoint(t *testing.T) {
	r := jobRouter(t)

	rec := do(r, nethttp.MethodPost, "/jobs/ok/invoke", `{"day":"2024-07-05"}`)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("ok: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out executor.InvokeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Output.Rows != 4 || out.Output.Day != "2024-07-05" {
		t.Fatalf("ok body: got=%+v err=%v", out, err)
	}

	cases := []struct {
		path, body string
		status     int
		code       string
	}{
		{"/jobs/missing/invoke", `{}`, nethttp.StatusNotFound, executor.CodeUnknownJob},
		{"/jobs/ok/invoke", `{"day":"05/07/2024"}`, nethttp.StatusBadRequest, executor.CodeInvalidInput},
		{"/jobs/ok/invoke", `{"day":`, nethttp.StatusBadRequest, executor.CodeInvalidInput},
		{"/jobs/failing/invoke", `{}`, nethttp.StatusUnprocessableEntity, executor.CodeJobFailed},
		{"/jobs/schema/invoke", `{}`, nethttp.StatusUnprocessableEntity, executor.CodeJobFatal},
		{"/jobs/flaky/invoke", `{}`, nethttp.StatusServiceUnavailable, executor.CodeJobTransient},
	}
	for _, tc := range cases {
		rec := do(r, nethttp.MethodPost, tc.path, tc.body)
		if rec.Code != tc.status {
			t.Fatalf("%s %s: status want=%d got=%d body=%s", tc.path, tc.body, tc.status, rec.Code, rec.Body.String())
		}
		if got := errorCode(t, rec); got != tc.code {
			t.Fatalf("%s %s: code want=%q got=%q", tc.path, tc.body, tc.code, got)
		}
	}
}

func TestHTTPInvokerAgainstJobEndpoint(t *testing.T) {
	srv := httptest.NewServer(jobRouter(t))
	defer srv.Close()
	inv, err := executor.NewHTTPInvoker(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPInvoker: %v", err)
	}
	ctx := context.Background()
	if out, err := inv.Invoke(ctx, "ok", pipeline.JobInput{Day: "2024-07-05"}); err != nil || out.Rows != 4 {
		t.Fatalf("Invoke ok: got=%+v err=%v", out, err)
	}
	if _, err := inv.Invoke(ctx, "schema", pipeline.JobInput{}); pipeline.IsRetryable(err) {
		t.Fatalf("Invoke schema: want non-retryable got=%v", err)
	}
	if _, err := inv.Invoke(ctx, "flaky", pipeline.JobInput{}); !pipeline.IsTransient(err) {
		t.Fatalf("Invoke flaky: want transient got=%v", err)
	}
}

type fakeRuns struct {
	busy    bool
	started []time.Time
	view    *services.RunView
}

func (f *fakeRuns) Start(ctx context.Context, day time.Time, trigger string) (*pipeline.PipelineRun, error) {
	if f.busy {
		return nil, services.ErrRunInProgress
	}
	f.started = append(f.started, day)
	return &pipeline.PipelineRun{ID: uuid.New(), Day: pipeline.FormatDay(day), Trigger: trigger, Status: pipeline.RunStatusRunning}, nil
}

func (f *fakeRuns) RunSync(ctx context.Context, day time.Time, trigger string) (*pipeline.PipelineRun, error) {
	return f.Start(ctx, day, trigger)
}

func (f *fakeRuns) Get(ctx context.Context, id uuid.UUID) (*services.RunView, error) {
	if f.view != nil && f.view.Run.ID == id {
		return f.view, nil
	}
	return nil, nil
}

func (f *fakeRuns) List(ctx context.Context, day string, limit int) ([]*pipeline.PipelineRun, error) {
	return nil, nil
}

func (f *fakeRuns) Wait() {}

func TestRunEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := uuid.New()
	runs := &fakeRuns{view: &services.RunView{Run: &pipeline.PipelineRun{ID: id, Day: "2024-07-05", Status: pipeline.RunStatusSucceeded}}}
	r := NewRouter(RouterConfig{RunHandler: httpH.NewRunHandler(runs)})

	rec := do(r, nethttp.MethodPost, "/api/runs", `{"day":"2024-07-05"}`)
	if rec.Code != nethttp.StatusAccepted || len(runs.started) != 1 || pipeline.FormatDay(runs.started[0]) != "2024-07-05" {
		t.Fatalf("start: status=%d started=%v", rec.Code, runs.started)
	}
	if rec := do(r, nethttp.MethodPost, "/api/runs", `{"day":"yesterday"}`); rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("bad day: want 400 got=%d", rec.Code)
	}
	runs.busy = true
	if rec := do(r, nethttp.MethodPost, "/api/runs", `{"day":"2024-07-05"}`); rec.Code != nethttp.StatusConflict || errorCode(t, rec) != "run_in_progress" {
		t.Fatalf("busy: want 409 run_in_progress got=%d %s", rec.Code, rec.Body.String())
	}

	if rec := do(r, nethttp.MethodGet, "/api/runs/"+id.String(), ""); rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), `"status":"succeeded"`) {
		t.Fatalf("get: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := do(r, nethttp.MethodGet, "/api/runs/"+uuid.NewString(), ""); rec.Code != nethttp.StatusNotFound {
		t.Fatalf("get missing: want 404 got=%d", rec.Code)
	}
	if rec := do(r, nethttp.MethodGet, "/api/runs/nope", ""); rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("get bad id: want 400 got=%d", rec.Code)
	}
}

func TestReadinessReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	health := httpH.NewHealthHandler().
		WithCheck("run_history", func(ctx context.Context) error { return nil }).
		WithCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	r := NewRouter(RouterConfig{HealthHandler: health})

	if rec := do(r, nethttp.MethodGet, "/healthcheck", ""); rec.Code != nethttp.StatusOK {
		t.Fatalf("healthcheck: want 200 got=%d", rec.Code)
	}
	rec := do(r, nethttp.MethodGet, "/readyz", "")
	if rec.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("readyz: want 503 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if body.Checks["run_history"] != "ok" || body.Checks["redis"] != "connection refused" || body.Status != "unavailable" {
		t.Fatalf("readyz body: got=%+v", body)
	}
}
