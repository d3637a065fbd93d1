package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deal_pipeline"

// Pipeline holds the counters recorded by the triggered handlers and scheduled jobs.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	claimsTracked      prometheus.Counter
	deactivations      *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	handlerFailures    *prometheus.CounterVec
	deadLettered       *prometheus.CounterVec
	outboxPublished    prometheus.Counter
	outboxFailed       prometheus.Counter
	jobDuration        *prometheus.HistogramVec
	jobSuccess         *prometheus.CounterVec
	jobFailure         *prometheus.CounterVec
	duplicateDelivered *prometheus.CounterVec
}

func NewPipeline(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		return nil
	}
	p := &Pipeline{
		claimsTracked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_tracked_total",
			Help:      "Claim events applied to deal aggregates.",
		}),
		deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_deactivations_total",
			Help:      "Deals deactivated by the lifecycle monitor.",
		}, []string{"reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_emitted_total",
			Help:      "Notifications inserted by the emitter.",
		}, []string{"type"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Handler invocations that returned an error.",
		}, []string{"event_type"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_total",
			Help:      "Events sent to the dead-letter topic after retries.",
		}, []string{"event_type"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox rows published to Kafka.",
		}),
		outboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Outbox publish attempts that failed.",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled and on-demand jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		jobSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_success_total",
			Help:      "Successful job executions.",
		}, []string{"job"}),
		jobFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failure_total",
			Help:      "Failed job executions.",
		}, []string{"job"}),
		duplicateDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_deliveries_total",
			Help:      "Processing steps skipped because the event was already applied.",
		}, []string{"step"}),
	}
	reg.MustRegister(
		p.claimsTracked, p.deactivations, p.notifications, p.handlerFailures, p.deadLettered,
		p.outboxPublished, p.outboxFailed, p.jobDuration, p.jobSuccess, p.jobFailure, p.duplicateDelivered,
	)
	return p
}

func (p *Pipeline) IncClaimsTracked() {
	if p == nil {
		return
	}
	p.claimsTracked.Inc()
}

func (p *Pipeline) IncDeactivation(reason string) {
	if p == nil {
		return
	}
	p.deactivations.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (p *Pipeline) IncNotification(kind string) {
	if p == nil {
		return
	}
	p.notifications.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (p *Pipeline) IncHandlerFailure(eventType string) {
	if p == nil {
		return
	}
	p.handlerFailures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (p *Pipeline) IncDeadLettered(eventType string) {
	if p == nil {
		return
	}
	p.deadLettered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (p *Pipeline) IncDuplicate(step string) {
	if p == nil {
		return
	}
	p.duplicateDelivered.WithLabelValues(normalizeLabel(step)).Inc()
}

func (p *Pipeline) IncOutboxPublished() {
	if p == nil {
		return
	}
	p.outboxPublished.Inc()
}

func (p *Pipeline) IncOutboxFailed() {
	if p == nil {
		return
	}
	p.outboxFailed.Inc()
}

// ObserveJob records one run of a named job.
func (p *Pipeline) ObserveJob(job string, duration time.Duration, err error) {
	if p == nil {
		return
	}
	job = normalizeLabel(job)
	p.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err != nil {
		p.jobFailure.WithLabelValues(job).Inc()
		return
	}
	p.jobSuccess.WithLabelValues(job).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
