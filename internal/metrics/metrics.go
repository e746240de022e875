// Package metrics exposes Prometheus collectors for the command pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lightmanager_session_state",
		Help: "Broker session state (1 for the current state, 0 for the others)",
	}, []string{"state"})

	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lightmanager_connect_attempts_total",
		Help: "Broker connection attempts by result",
	}, []string{"result"})

	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lightmanager_messages_received_total",
		Help: "Inbound command messages by event type and whether a handler ran",
	}, []string{"type", "handled"})

	auditPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lightmanager_audit_publishes_total",
		Help: "Audit republishes by result",
	}, []string{"result"})

	inboxDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightmanager_inbox_dropped_total",
		Help: "Inbound messages dropped because the inbox was full",
	})

	handlerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightmanager_handler_panics_total",
		Help: "Command handler panics recovered by the dispatcher",
	})

	channelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lightmanager_channel_state",
		Help: "Current channel level (1 asserted, 0 deasserted)",
	}, []string{"channel"})

	channelWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lightmanager_channel_write_errors_total",
		Help: "Failed hardware writes by channel",
	}, []string{"channel"})
)

var sessionStates = []string{"disconnected", "connecting", "connected"}

// SetSessionState records the active session state.
func SetSessionState(state string) {
	for _, s := range sessionStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		sessionState.WithLabelValues(s).Set(value)
	}
}

// RecordConnectAttempt counts one connection attempt.
func RecordConnectAttempt(ok bool) {
	connectAttempts.WithLabelValues(result(ok)).Inc()
}

// RecordMessage counts one inbound message.
func RecordMessage(eventType string, handled bool) {
	if eventType == "" {
		eventType = "none"
	}
	h := "false"
	if handled {
		h = "true"
	}
	messagesReceived.WithLabelValues(eventType, h).Inc()
}

// RecordAuditPublish counts one audit republish.
func RecordAuditPublish(ok bool) {
	auditPublishes.WithLabelValues(result(ok)).Inc()
}

// RecordInboxDrop counts an inbound message dropped on a full inbox.
func RecordInboxDrop() {
	inboxDrops.Inc()
}

// RecordHandlerPanic counts a recovered handler panic.
func RecordHandlerPanic() {
	handlerPanics.Inc()
}

// SetChannelState records the level of one channel.
func SetChannelState(channel string, asserted bool) {
	value := 0.0
	if asserted {
		value = 1.0
	}
	channelState.WithLabelValues(channel).Set(value)
}

// RecordChannelWriteError counts a failed hardware write.
func RecordChannelWriteError(channel string) {
	channelWriteErrors.WithLabelValues(channel).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
