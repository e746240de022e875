package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultOperationTimeout bounds broker I/O when no timeout is given.
	defaultOperationTimeout = 60 * time.Second

	// defaultPublishTimeout bounds the offline status publish on disconnect.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is used when the configured keepalive is not positive.
	defaultKeepAlive = 15 * time.Second

	// defaultInboxSize is used when the configured inbox size is not positive.
	defaultInboxSize = 64

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// buildClientOptions creates paho options for a single connection attempt.
//
// This configures:
//   - Broker URL (plain tcp)
//   - The caller's client id
//   - Authentication credentials (if provided)
//   - Clean session with automatic reconnection disabled
//   - Connect and write timeouts from the attempt timeout
//   - Last Will and Testament on the status topic (if configured)
func buildClientOptions(cfg config.MQTTConfig, clientID string, timeout time.Duration) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Every attempt is a fresh session; the session manager owns retries.
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(timeout)
	opts.SetWriteTimeout(timeout)

	keepAlive := time.Duration(cfg.Session.KeepAlive) * time.Second
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// Deliver messages one at a time in arrival order.
	opts.SetOrderMatters(true)

	if cfg.Topics.Status != "" {
		opts.SetBinaryWill(cfg.Topics.Status, buildStatusPayload(false, "unexpected_disconnect"), 1, true)
	}

	return opts
}

// statusPayload is the retained document published on the status topic.
type statusPayload struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// buildStatusPayload creates the JSON payload for online/offline status messages.
func buildStatusPayload(online bool, reason string) []byte {
	p := statusPayload{
		Status:    "offline",
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if online {
		p.Status = "online"
	}
	data, err := json.Marshal(p)
	if err != nil {
		return []byte(`{"status":"` + p.Status + `"}`)
	}
	return data
}
