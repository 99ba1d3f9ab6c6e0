// Package metrics exposes the runtime's Prometheus collectors: job queue
// depth, automation run outcomes, payment reconciliation KPIs, feedback SLA
// and auto-fix rates, engagement nudge counts, and the ops HTTP surface.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	core "github.com/oddside/automation-runtime/internal/app/core/service"
)

const namespace = "automation_runtime"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ops",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight ops HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ops",
		Name:      "requests_total",
		Help:      "Total number of ops HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ops",
		Name:      "request_duration_seconds",
		Help:      "Duration of ops HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	jobQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "queue_depth",
		Help:      "Current number of jobs in each status.",
	}, []string{"status"})

	jobProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Total number of jobs claimed and executed by the dispatcher.",
	}, []string{"job_type", "outcome"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "execution_duration_seconds",
		Help:      "Duration of job execution.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"job_type"})

	automationRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "automation",
		Name:      "runs_total",
		Help:      "Total number of automation runs by outcome.",
	}, []string{"trigger_kind", "status"})

	automationAutoDisabled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "automation",
		Name:      "auto_disabled_total",
		Help:      "Total number of automations auto-disabled after consecutive errors.",
	}, []string{"trigger_kind"})

	reconciliationMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "reconciliation_matched_total",
		Help:      "Total number of ledger entries matched against Stripe payments, by phase.",
	}, []string{"phase"})

	reconciliationAutoMarked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "auto_mark_paid_total",
		Help:      "Total number of ledger entries auto-marked paid from a high-confidence Stripe match.",
	})

	reminderSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "reminders_sent_total",
		Help:      "Total number of payment reminders sent, by urgency tier.",
	}, []string{"urgency"})

	chronicNonPayers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "chronic_non_payers",
		Help:      "Current count of users flagged as chronic non-payers.",
	})

	feedbackSLABreaches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feedback",
		Name:      "sla_breaches_total",
		Help:      "Total number of feedback items that missed their SLA due date.",
	}, []string{"severity"})

	feedbackAutoFix = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feedback",
		Name:      "auto_fix_total",
		Help:      "Total number of automated feedback fix attempts, by outcome.",
	}, []string{"fix_type", "outcome"})

	feedbackReopened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feedback",
		Name:      "reopened_within_48h_total",
		Help:      "Total number of feedback items reopened within 48h of resolution.",
	})

	engagementNudges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engagement",
		Name:      "nudges_total",
		Help:      "Total number of engagement nudges sent, by category.",
	}, []string{"category", "outcome"})

	chatWatcherDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat_watcher",
		Name:      "decisions_total",
		Help:      "Total number of chat watcher proactive-message decisions, by outcome.",
	}, []string{"outcome"})

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		jobQueueDepth,
		jobProcessed,
		jobDuration,
		automationRuns,
		automationAutoDisabled,
		reconciliationMatched,
		reconciliationAutoMarked,
		reminderSent,
		chronicNonPayers,
		feedbackSLABreaches,
		feedbackAutoFix,
		feedbackReopened,
		engagementNudges,
		chatWatcherDecisions,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the ops mux with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		httpRequests.WithLabelValues(strings.ToUpper(r.Method), r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(strings.ToUpper(r.Method), r.URL.Path).Observe(duration.Seconds())
	})
}

// SetJobQueueDepth records the current number of jobs in a given status.
func SetJobQueueDepth(status string, count float64) {
	jobQueueDepth.WithLabelValues(status).Set(count)
}

// RecordJobExecution records the outcome and duration of one dispatched job.
func RecordJobExecution(jobType, outcome string, duration time.Duration) {
	jobProcessed.WithLabelValues(jobType, outcome).Inc()
	jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// RecordAutomationRun records one automation run outcome.
func RecordAutomationRun(triggerKind, status string) {
	automationRuns.WithLabelValues(triggerKind, status).Inc()
}

// RecordAutomationAutoDisabled records an automation crossing the
// consecutive-error auto-disable threshold.
func RecordAutomationAutoDisabled(triggerKind string) {
	automationAutoDisabled.WithLabelValues(triggerKind).Inc()
}

// RecordReconciliationMatch records a Stripe/ledger match at a given phase
// ("exact" or "fuzzy").
func RecordReconciliationMatch(phase string) {
	reconciliationMatched.WithLabelValues(phase).Inc()
}

// RecordAutoMarkPaid records one ledger entry auto-marked paid.
func RecordAutoMarkPaid() {
	reconciliationAutoMarked.Inc()
}

// RecordReminderSent records one payment reminder send by urgency tier.
func RecordReminderSent(urgency string) {
	reminderSent.WithLabelValues(urgency).Inc()
}

// SetChronicNonPayers updates the chronic non-payer gauge.
func SetChronicNonPayers(count float64) {
	chronicNonPayers.Set(count)
}

// RecordFeedbackSLABreach records a feedback item that missed its SLA.
func RecordFeedbackSLABreach(severity string) {
	feedbackSLABreaches.WithLabelValues(severity).Inc()
}

// RecordFeedbackAutoFix records one automated fix attempt outcome.
func RecordFeedbackAutoFix(fixType, outcome string) {
	feedbackAutoFix.WithLabelValues(fixType, outcome).Inc()
}

// RecordFeedbackReopened records feedback reopened within 48h of resolution.
func RecordFeedbackReopened() {
	feedbackReopened.Inc()
}

// RecordEngagementNudge records one engagement nudge send attempt.
func RecordEngagementNudge(category, outcome string) {
	engagementNudges.WithLabelValues(category, outcome).Inc()
}

// RecordChatWatcherDecision records one chat watcher decision outcome.
func RecordChatWatcherDecision(outcome string) {
	chatWatcherDecisions.WithLabelValues(outcome).Inc()
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus
// metrics, registering the pair of collectors for (namespace, subsystem,
// name) exactly once.
func ObservationHooks(subsystem, name string) core.ObservationHooks {
	key := subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			collector.gauge.WithLabelValues(metaLabel(meta)).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name + "_in_flight",
		Help:      "Current operations in flight for " + subsystem,
	}, []string{"resource"})
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name + "_duration_seconds",
		Help:      "Duration of operations for " + subsystem,
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"resource", "status"})
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	for _, key := range []string{"automation_id", "job_id", "feedback_id", "ledger_id", "group_id", "user_id"} {
		if id, ok := meta[key]; ok && id != "" {
			return id
		}
	}
	return "unknown"
}

// JobDispatchHooks wraps ObservationHooks for dispatch-loop instrumentation.
func JobDispatchHooks() core.DispatchHooks {
	return ObservationHooks("jobs", "dispatch")
}

// AutomationRunHooks captures per-run automation execution timing.
func AutomationRunHooks() core.ObservationHooks {
	return ObservationHooks("automation", "run")
}

// ReconciliationScanHooks captures per-scan payment reconciliation timing.
func ReconciliationScanHooks() core.ObservationHooks {
	return ObservationHooks("payment", "reconciliation_scan")
}

// FeedbackPipelineHooks captures per-submission feedback classification timing.
func FeedbackPipelineHooks() core.ObservationHooks {
	return ObservationHooks("feedback", "pipeline")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
