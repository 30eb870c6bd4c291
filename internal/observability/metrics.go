package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/jobs/orchestrator"
	"github.com/yungbote/marketlake/internal/platform/envutil"
	"github.com/yungbote/marketlake/internal/platform/logger"
)

// Metrics is the process-wide registry exposed at /metrics. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	taskRecords  *CounterVec
	taskAttempts *CounterVec
	taskDuration *HistogramVec
	taskCached   *CounterVec
	runs         *CounterVec
	runDuration  *HistogramVec
	jobs         *CounterVec
	jobDuration  *HistogramVec

	redisUp   *Gauge
	redisPing *Gauge
	pgStats   *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

func Current() *Metrics { return instance }

// Init builds the registry once. It returns nil when METRICS_ENABLED is off.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	durations := []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600}
	return &Metrics{
		apiRequests: NewCounterVec("marketlake_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"marketlake_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("marketlake_api_inflight_requests", "In-flight API requests."),

		taskRecords:  NewCounterVec("marketlake_task_records_total", "Finished task attempts by task and status.", []string{"task", "status"}),
		taskAttempts: NewCounterVec("marketlake_task_attempts_total", "Executed (non-cached) task attempts by task.", []string{"task"}),
		taskDuration: NewHistogramVec("marketlake_task_duration_seconds", "Task wall time across attempts.", []string{"task", "status"}, durations),
		taskCached:   NewCounterVec("marketlake_task_cache_hits_total", "Tasks answered from the cache.", []string{"task"}),
		runs:         NewCounterVec("marketlake_runs_total", "Pipeline runs by status.", []string{"status"}),
		runDuration:  NewHistogramVec("marketlake_run_duration_seconds", "Pipeline run wall time.", []string{"status"}, durations),
		jobs:         NewCounterVec("marketlake_jobs_total", "Job executions by job and status.", []string{"job", "status"}),
		jobDuration:  NewHistogramVec("marketlake_job_duration_seconds", "Job execution time.", []string{"job", "status"}, durations),

		redisUp:   NewGauge("marketlake_redis_up", "1 when the last redis ping succeeded."),
		redisPing: NewGauge("marketlake_redis_ping_seconds", "Last redis ping latency."),
		pgStats:   NewGaugeVec("marketlake_db_pool", "Run-history database pool stats.", []string{"stat"}),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.taskRecords, m.taskAttempts, m.taskDuration, m.taskCached,
		m.runs, m.runDuration, m.jobs, m.jobDuration,
		m.redisUp, m.redisPing, m.pgStats,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// RecordTask implements orchestrator.Recorder. Cache hits are counted
// separately and never as attempts.
func (m *Metrics) RecordTask(ctx context.Context, runID string, st orchestrator.TaskState) {
	if m == nil {
		return
	}
	status := string(st.Status)
	m.taskRecords.Inc(st.Task, status)
	if st.Cached {
		m.taskCached.Inc(st.Task)
		return
	}
	m.taskAttempts.Inc(st.Task)
	if st.StartedAt != nil && st.FinishedAt != nil {
		m.taskDuration.Observe(st.FinishedAt.Sub(*st.StartedAt).Seconds(), st.Task, status)
	}
}

func (m *Metrics) ObserveRun(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.runs.Inc(status)
	m.runDuration.Observe(dur.Seconds(), status)
}

// ObserveJob records one job execution on the job runner side.
func (m *Metrics) ObserveJob(job string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	status := "succeeded"
	switch {
	case err == nil:
	case pipeline.IsTransient(err):
		status = "transient"
	case !pipeline.IsRetryable(err):
		status = "fatal"
	default:
		status = "failed"
	}
	m.jobs.Inc(job, status)
	m.jobDuration.Observe(dur.Seconds(), job, status)
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db handle unavailable", "error", err)
		}
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
