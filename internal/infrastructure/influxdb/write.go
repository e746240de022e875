package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementChannelState = "channel_state"
	MeasurementCommand      = "command"
)

// WriteChannelState records a channel output change as
// channel_state,channel=<id> state=0|1.
func (s *Sink) WriteChannelState(channelID int, asserted bool, at time.Time) {
	state := 0
	if asserted {
		state = 1
	}
	s.write(write.NewPoint(MeasurementChannelState,
		map[string]string{"channel": strconv.Itoa(channelID)},
		map[string]any{"state": state},
		at,
	))
}

// WriteCommand records one message received on the command topic.
// Undecodable payloads have no event type and are tagged type=unknown.
//
// Parameters:
//   - eventType: Decoded event type
//   - handled: Whether a handler accepted the event
//   - auditOK: Whether the audit republish succeeded
//   - at: Receive time
func (s *Sink) WriteCommand(eventType string, handled, auditOK bool, at time.Time) {
	if eventType == "" {
		eventType = "unknown"
	}
	s.write(write.NewPoint(MeasurementCommand,
		map[string]string{"type": eventType},
		map[string]any{"handled": handled, "audit_ok": auditOK},
		at,
	))
}

func (s *Sink) write(p *write.Point) {
	if !s.Open() {
		return
	}
	s.writeAPI.WritePoint(p)
}
