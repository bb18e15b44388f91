// Package metrics 提供 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 连接指标
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections",
		Help: "Number of open client connections",
	})

	AuthenticatedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_authenticated_sessions",
		Help: "Number of authenticated sessions",
	})

	Disconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_disconnects_total",
		Help: "Connection teardown count by reason",
	}, []string{"reason"})

	// 房间指标
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_rooms",
		Help: "Number of active rooms",
	})

	// 消息指标
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_received_total",
		Help: "Total messages received from clients",
	}, []string{"action"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Total messages sent to clients",
	})

	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_protocol_errors_total",
		Help: "Total fatal protocol errors (bad frame or envelope)",
	})

	ProbesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_probes_sent_total",
		Help: "Total liveness probes broadcast to sessions",
	})
)
