// Package metrics exposes Prometheus collectors for the reporter client.
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldline"

type Metrics struct {
	Registry *prometheus.Registry

	// attachmentsStored counts stored files by path (remote, embedded)
	attachmentsStored *prometheus.CounterVec
	storageErrors     *prometheus.CounterVec

	queueDepth  prometheus.Gauge
	failedDepth prometheus.Gauge

	// submissions counts replayed actions by kind and outcome
	submissions *prometheus.CounterVec
	drains      *prometheus.CounterVec

	online prometheus.Gauge

	polls        *prometheus.CounterVec
	unread       prometheus.Gauge
	presented    prometheus.Counter
	markRead     *prometheus.CounterVec
	onScreen     prometheus.Gauge
	transitioned *prometheus.CounterVec
}

// New registers all collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		attachmentsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "attachments_stored_total",
			Help: "Evidence files stored, by locator path",
		}, []string{"path"}),
		storageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "storage_errors_total",
			Help: "Local store write failures by store",
		}, []string{"store"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_actions",
			Help: "Actions waiting for submission",
		}),
		failedDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "failed_actions",
			Help: "Actions rejected permanently and awaiting manual resolution",
		}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "submissions_total",
			Help: "Replayed actions by kind and outcome",
		}, []string{"kind", "outcome"}),
		drains: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_drains_total",
			Help: "Queue drains by result",
		}, []string{"result"}),
		online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "online",
			Help: "1 when the connectivity monitor reports online",
		}),
		transitioned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connectivity_transitions_total",
			Help: "Committed connectivity transitions by target state",
		}, []string{"to"}),
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notification_polls_total",
			Help: "Notification polls by result",
		}, []string{"result"}),
		unread: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "notifications_unread",
			Help: "Unread notifications in the last successful poll",
		}),
		presented: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_presented_total",
			Help: "Notifications shown on screen",
		}),
		markRead: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_mark_read_total",
			Help: "Mark-read calls by result",
		}, []string{"result"}),
		onScreen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "notifications_on_screen",
			Help: "Notifications currently on screen",
		}),
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) AttachmentStored(embedded bool) {
	if m == nil {
		return
	}
	path := "remote"
	if embedded {
		path = "embedded"
	}
	m.attachmentsStored.WithLabelValues(path).Inc()
}

func (m *Metrics) StorageError(store string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(store).Inc()
}

func (m *Metrics) SetQueueDepth(pending, failed int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(pending))
	m.failedDepth.Set(float64(failed))
}

// Submission records one replay outcome: ok, transient or permanent.
func (m *Metrics) Submission(kind, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Drain(ok bool) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	to := "offline"
	v := 0.0
	if online {
		to = "online"
		v = 1
	}
	m.online.Set(v)
	m.transitioned.WithLabelValues(to).Inc()
}

func (m *Metrics) Poll(ok bool, unread int) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result(ok)).Inc()
	if ok {
		m.unread.Set(float64(unread))
	}
}

func (m *Metrics) Presented(onScreen int) {
	if m == nil {
		return
	}
	m.presented.Inc()
	m.onScreen.Set(float64(onScreen))
}

func (m *Metrics) SetOnScreen(n int) {
	if m == nil {
		return
	}
	m.onScreen.Set(float64(n))
}

func (m *Metrics) MarkRead(ok bool) {
	if m == nil {
		return
	}
	m.markRead.WithLabelValues(result(ok)).Inc()
}
