package i2cp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	sessionsActive   prometheus.Gauge
	connections      *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	messageStatus    *prometheus.CounterVec
	unknownMessages  prometheus.Counter
	hostLookups      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "i2cp_sessions_active",
			Help: "Number of live client sessions",
		}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "i2cp_connections_total",
			Help: "Number of accepted client connections by outcome",
		}, []string{"result"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "i2cp_messages_received_total",
			Help: "Number of messages received from clients",
		}, []string{"type"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "i2cp_messages_sent_total",
			Help: "Number of messages queued to clients",
		}, []string{"type"}),
		messageStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "i2cp_message_status_total",
			Help: "Number of MessageStatus replies by status",
		}, []string{"status"}),
		unknownMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "i2cp_unknown_messages_total",
			Help: "Number of dropped messages of unknown type",
		}),
		hostLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "i2cp_host_lookups_total",
			Help: "Number of HostLookup requests by result",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.sessionsActive,
			m.connections,
			m.messagesReceived,
			m.messagesSent,
			m.messageStatus,
			m.unknownMessages,
			m.hostLookups,
		)
	}
	return m
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.sessionsActive.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.sessionsActive.Dec()
	}
}

func (m *Metrics) connection(result string) {
	if m != nil {
		m.connections.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) received(msgType uint8) {
	if m != nil {
		m.messagesReceived.WithLabelValues(MessageTypeName(msgType)).Inc()
	}
}

func (m *Metrics) sent(msgType uint8) {
	if m != nil {
		m.messagesSent.WithLabelValues(MessageTypeName(msgType)).Inc()
	}
}

func (m *Metrics) status(status MessageStatus) {
	if m != nil {
		m.messageStatus.WithLabelValues(status.String()).Inc()
	}
}

func (m *Metrics) unknown() {
	if m != nil {
		m.unknownMessages.Inc()
	}
}

func (m *Metrics) hostLookup(found bool) {
	if m == nil {
		return
	}
	if found {
		m.hostLookups.WithLabelValues("found").Inc()
	} else {
		m.hostLookups.WithLabelValues("not_found").Inc()
	}
}
