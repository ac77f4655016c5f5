package websub

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/xmidt-org/websub/xmetrics"
)

const (
	PendingListSize       = "pending_list_size_value"
	ActiveListSize        = "active_list_size_value"
	HandshakesSent        = "handshakes_sent_count"
	HandshakesRefused     = "handshakes_refused_count"
	DiscoveryFailed       = "discovery_failed_count"
	VerificationsAccepted = "verifications_accepted_count"
	VerificationsRejected = "verifications_rejected_count"
	PushesAccepted        = "pushes_accepted_count"
	PushesRejected        = "pushes_rejected_count"
)

// SubscriberMetrics holds the set of instruments a Subscriber updates as
// subscriptions and deliveries flow through it.
type SubscriberMetrics struct {
	PendingListSize       metrics.Gauge
	ActiveListSize        metrics.Gauge
	HandshakesSent        metrics.Counter
	HandshakesRefused     metrics.Counter
	DiscoveryFailed       metrics.Counter
	VerificationsAccepted metrics.Counter
	VerificationsRejected metrics.Counter
	PushesAccepted        metrics.Counter
	PushesRejected        metrics.Counter
}

// Metrics is the module function for this package's metrics.
func Metrics() []xmetrics.Metric {
	return []xmetrics.Metric{
		{
			Name: PendingListSize,
			Help: "Amount of topics awaiting hub verification",
			Type: xmetrics.GaugeType,
		},
		{
			Name: ActiveListSize,
			Help: "Amount of topics with an active subscription",
			Type: xmetrics.GaugeType,
		},
		{
			Name: HandshakesSent,
			Help: "Count of subscribe/unsubscribe handshakes POSTed to hubs",
			Type: xmetrics.CounterType,
		},
		{
			Name: HandshakesRefused,
			Help: "Count of handshakes a hub refused synchronously",
			Type: xmetrics.CounterType,
		},
		{
			Name: DiscoveryFailed,
			Help: "Count of topic URLs for which no hub could be discovered",
			Type: xmetrics.CounterType,
		},
		{
			Name: VerificationsAccepted,
			Help: "Count of hub verification requests that transitioned a subscription",
			Type: xmetrics.CounterType,
		},
		{
			Name: VerificationsRejected,
			Help: "Count of hub verification requests rejected as malformed, unknown, or forbidden",
			Type: xmetrics.CounterType,
		},
		{
			Name: PushesAccepted,
			Help: "Count of content pushes with a valid signature",
			Type: xmetrics.CounterType,
		},
		{
			Name: PushesRejected,
			Help: "Count of content pushes absorbed due to a signature mismatch",
			Type: xmetrics.CounterType,
		},
	}
}

// ApplyMetricsData fetches this package's metrics from the given registry.
func ApplyMetricsData(registry xmetrics.Registry) (m SubscriberMetrics) {
	m.PendingListSize = registry.NewGauge(PendingListSize)
	m.PendingListSize.Set(0.0)
	m.ActiveListSize = registry.NewGauge(ActiveListSize)
	m.ActiveListSize.Set(0.0)
	m.HandshakesSent = registry.NewCounter(HandshakesSent)
	m.HandshakesRefused = registry.NewCounter(HandshakesRefused)
	m.DiscoveryFailed = registry.NewCounter(DiscoveryFailed)
	m.VerificationsAccepted = registry.NewCounter(VerificationsAccepted)
	m.VerificationsRejected = registry.NewCounter(VerificationsRejected)
	m.PushesAccepted = registry.NewCounter(PushesAccepted)
	m.PushesRejected = registry.NewCounter(PushesRejected)
	return
}

// discardMetrics supplies no-op instruments for Subscribers constructed without a registry.
func discardMetrics() SubscriberMetrics {
	return SubscriberMetrics{
		PendingListSize:       discard.NewGauge(),
		ActiveListSize:        discard.NewGauge(),
		HandshakesSent:        discard.NewCounter(),
		HandshakesRefused:     discard.NewCounter(),
		DiscoveryFailed:       discard.NewCounter(),
		VerificationsAccepted: discard.NewCounter(),
		VerificationsRejected: discard.NewCounter(),
		PushesAccepted:        discard.NewCounter(),
		PushesRejected:        discard.NewCounter(),
	}
}
