package mqtt

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
)

// Client is the broker transport for the command pipeline.
//
// Unlike a long-lived auto-reconnecting client, every Connect call opens a
// fresh session with the caller's client id and returns the outcome of
// that single attempt; retry policy belongs to the caller. Inbound
// messages are queued and handed out by Drain on the caller's goroutine.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Messages are delivered by Drain in arrival order.
type Client struct {
	cfg config.MQTTConfig

	mu        sync.RWMutex
	client    pahomqtt.Client
	clientID  string
	timeout   time.Duration
	connected bool
	stop      chan struct{} // closed when the current session ends

	inbox     chan Message
	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func(clientID string)
	onDisconnect func(err error)
	onDrop       func(topic string)
	callbackMu   sync.RWMutex

	// logger for error logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Message is one inbound message. Payload is owned by the receiver.
type Message struct {
	Topic   string
	Payload []byte
}

// New creates a disconnected client for the broker in cfg.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Client ready for Connect
func New(cfg config.MQTTConfig) *Client {
	size := cfg.Session.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Client{
		cfg:     cfg,
		timeout: defaultOperationTimeout,
		inbox:   make(chan Message, size),
		done:    make(chan struct{}),
	}
}

// Connect opens a new broker session identified by clientID.
//
// Any previous session is dropped first. The attempt is bounded by
// timeout, which also bounds later subscribe and publish acknowledgements
// for this session.
//
// Parameters:
//   - clientID: Client identifier presented to the broker
//   - timeout: Maximum time for broker I/O
//
// Returns:
//   - error: ErrConnectionFailed wrapping the cause, or ErrClosed
func (c *Client) Connect(clientID string, timeout time.Duration) error {
	if c.isClosed() {
		return ErrClosed
	}
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}

	c.Disconnect()

	stop := make(chan struct{})
	opts := buildClientOptions(c.cfg, clientID, timeout)
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.enqueue(stop, msg.Topic(), msg.Payload())
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		close(stop)
		client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		close(stop)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	c.client = client
	c.stop = stop
	c.clientID = clientID
	c.timeout = timeout
	c.connected = true
	c.mu.Unlock()

	c.publishOnline()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(clientID)
	}

	return nil
}

// handleConnectionLost is called by paho when the session drops.
func (c *Client) handleConnectionLost(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// enqueue copies an inbound message into the inbox. It runs on paho's
// delivery goroutine and never blocks it: messages from an ended session
// are discarded, and a message that finds the inbox full is dropped and
// counted.
func (c *Client) enqueue(stop <-chan struct{}, topic string, payload []byte) {
	select {
	case <-stop:
		return
	case <-c.done:
		return
	default:
	}

	msg := Message{Topic: topic, Payload: bytes.Clone(payload)}
	if msg.Payload == nil {
		msg.Payload = []byte{}
	}

	select {
	case c.inbox <- msg:
	default:
		c.dropped.Add(1)
		if logger := c.getLogger(); logger != nil {
			logger.Warn("inbox full, message dropped", "topic", topic, "inbox_size", cap(c.inbox))
		}
		c.callbackMu.RLock()
		callback := c.onDrop
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(topic)
		}
	}
}

// Dropped returns how many inbound messages were discarded on a full inbox.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Drain passes every queued message to fn and returns how many it
// delivered. It never waits for new messages.
func (c *Client) Drain(fn func(topic string, payload []byte)) int {
	n := 0
	for {
		select {
		case msg := <-c.inbox:
			fn(msg.Topic, msg.Payload)
			n++
		default:
			return n
		}
	}
}

// Pending returns the number of queued inbound messages.
func (c *Client) Pending() int {
	return len(c.inbox)
}

// Disconnect ends the current session, announcing a graceful offline
// status first when a status topic is configured. Safe to call when not
// connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client := c.client
	stop := c.stop
	wasConnected := c.connected
	c.client = nil
	c.stop = nil
	c.connected = false
	c.mu.Unlock()

	if client == nil {
		return
	}

	// Messages still in flight for this session are discarded.
	close(stop)

	if wasConnected && client.IsConnected() && c.cfg.Topics.Status != "" {
		token := client.Publish(c.cfg.Topics.Status, byte(c.cfg.QoS), true,
			buildStatusPayload(false, "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	client.Disconnect(defaultDisconnectQuiesce)
}

// Close disconnects the current session.
// The client cannot be reconnected afterwards.
//
// Returns:
//   - error: Always nil; present for io.Closer compatibility
func (c *Client) Close() error {
	c.Disconnect()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// HealthCheck verifies the broker session is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// ClientID returns the identifier of the current or last session.
func (c *Client) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// SetOnConnect sets a callback invoked after each successful Connect.
func (c *Client) SetOnConnect(callback func(clientID string)) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the broker session is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnDrop sets a callback invoked for each inbound message dropped on a
// full inbox. It runs on paho's delivery goroutine and must not block.
func (c *Client) SetOnDrop(callback func(topic string)) {
	c.callbackMu.Lock()
	c.onDrop = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// liveSession describes the current broker session.
type liveSession struct {
	client  pahomqtt.Client
	timeout time.Duration
	stop    chan struct{}
}

// session returns the current session, or ErrNotConnected.
func (c *Client) session() (liveSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.client == nil || !c.client.IsConnected() {
		return liveSession{}, ErrNotConnected
	}
	return liveSession{client: c.client, timeout: c.timeout, stop: c.stop}, nil
}

// publishOnline announces the online status on the configured status topic.
func (c *Client) publishOnline() {
	if c.cfg.Topics.Status == "" {
		return
	}
	if err := c.publish(c.cfg.Topics.Status, buildStatusPayload(true, ""), true); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("status publish failed", "topic", c.cfg.Topics.Status, "error", err)
		}
	}
}
