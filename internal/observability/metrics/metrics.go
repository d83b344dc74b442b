// Package metrics exposes Prometheus instruments for the channel edges.
// Pipeline internals register their own metrics; these cover what happens
// before an event enters the pipeline and after a reply leaves it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChannelMetrics exposes counters/histograms for webhook and send flows.
type ChannelMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewChannelMetrics(reg prometheus.Registerer) *ChannelMetrics {
	m := &ChannelMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gasdesk",
			Subsystem: "channels",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound channel webhooks",
		}, []string{"channel", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gasdesk",
			Subsystem: "channels",
			Name:      "outbound_total",
			Help:      "Total outbound channel sends",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gasdesk",
			Subsystem: "channels",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook acknowledgement",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *ChannelMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *ChannelMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *ChannelMetrics) ObserveWebhookLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}
