package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long jobs, cycles and admin requests take
// - Traffic: Job, cycle and scheduler-run throughput
// - Errors: Failed jobs, containers and scheduled runs
// - Saturation: Worker resources currently alive on the platform
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics (Latency, Traffic, Errors, Saturation)
	JobDuration    metric.Float64Histogram
	JobsTotal      metric.Int64Counter
	JobErrorsTotal metric.Int64Counter
	JobsActive     metric.Int64UpDownCounter
	JobPollsTotal  metric.Int64Counter

	// Backup cycle metrics (Latency, Traffic, Errors)
	CycleDuration   metric.Float64Histogram
	CyclesTotal     metric.Int64Counter
	ContainersTotal metric.Int64Counter

	// Scheduler metrics (Traffic, Errors)
	SchedulerRunsTotal   metric.Int64Counter
	SchedulerErrorsTotal metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("dockup-scheduler")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics
	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Worker lifetime from create to delete in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(10, 30, 60, 120, 300, 600, 900, 1800, 3600, 7200),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"jobs_total",
		metric.WithDescription("Total number of worker resources created"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"job_errors_total",
		metric.WithDescription("Total number of failed jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"jobs_active",
		metric.WithDescription("Number of worker resources not yet deleted (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobPollsTotal, err = meter.Int64Counter(
		"job_polls_total",
		metric.WithDescription("Total number of worker state fetches"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Backup cycle metrics
	m.CycleDuration, err = meter.Float64Histogram(
		"backup_cycle_duration_seconds",
		metric.WithDescription("Backup cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 10, 30, 60, 300, 600, 1800, 3600, 7200),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CyclesTotal, err = meter.Int64Counter(
		"backup_cycles_total",
		metric.WithDescription("Total number of backup cycles"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ContainersTotal, err = meter.Int64Counter(
		"backup_containers_total",
		metric.WithDescription("Containers handled by backup cycles, by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Scheduler metrics
	m.SchedulerRunsTotal, err = meter.Int64Counter(
		"scheduler_runs_total",
		metric.WithDescription("Total number of scheduled job runs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SchedulerErrorsTotal, err = meter.Int64Counter(
		"scheduler_errors_total",
		metric.WithDescription("Total number of scheduled job runs that failed or panicked"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobCreated records a worker resource being created.
func (m *Metrics) RecordJobCreated(ctx context.Context, image string) {
	attrs := metric.WithAttributes(imageAttr(image))
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobsActive.Add(ctx, 1, attrs)
}

// RecordJobCompleted records a job finishing (success or failure).
func (m *Metrics) RecordJobCompleted(ctx context.Context, image string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(imageAttr(image), successAttr(success))
	m.JobDuration.Record(ctx, durationSeconds, attrs)
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(imageAttr(image)))

	if !success {
		m.JobErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobPoll records one state fetch of a worker resource.
func (m *Metrics) RecordJobPoll(ctx context.Context, image string) {
	m.JobPollsTotal.Add(ctx, 1, metric.WithAttributes(imageAttr(image)))
}

// RecordCycle records a finished backup cycle and its per-container outcomes.
func (m *Metrics) RecordCycle(ctx context.Context, success bool, durationSeconds float64, backed, skipped, failed int) {
	m.CycleDuration.Record(ctx, durationSeconds, metric.WithAttributes(successAttr(success)))
	m.CyclesTotal.Add(ctx, 1, metric.WithAttributes(successAttr(success)))
	m.ContainersTotal.Add(ctx, int64(backed), metric.WithAttributes(outcomeAttr(OutcomeBacked)))
	m.ContainersTotal.Add(ctx, int64(skipped), metric.WithAttributes(outcomeAttr(OutcomeSkipped)))
	m.ContainersTotal.Add(ctx, int64(failed), metric.WithAttributes(outcomeAttr(OutcomeFailed)))
}

// RecordSchedulerRun records one scheduled job invocation.
func (m *Metrics) RecordSchedulerRun(ctx context.Context, name string, success bool) {
	attrs := metric.WithAttributes(scheduleAttr(name), successAttr(success))
	m.SchedulerRunsTotal.Add(ctx, 1, attrs)
	if !success {
		m.SchedulerErrorsTotal.Add(ctx, 1, attrs)
	}
}
