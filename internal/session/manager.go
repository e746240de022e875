package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lightmanager/lightmanager/internal/event"
	"github.com/lightmanager/lightmanager/internal/metrics"
)

// Default session settings.
const (
	DefaultAuditPrefix    = "/audit"
	DefaultClientIDPrefix = "lightmanager-"
	DefaultSocketTimeout  = 60 * time.Second
	DefaultRetryDelay     = 5 * time.Second
)

// Transport is the broker connection used by the manager.
//
// Connect opens one session with the given client id, bounding broker I/O
// by timeout. Drain hands every buffered inbound message to fn and returns
// how many it delivered; it must not block waiting for new messages.
type Transport interface {
	Connect(clientID string, timeout time.Duration) error
	Disconnect()
	IsConnected() bool
	Subscribe(topic string) error
	Publish(topic string, payload []byte) error
	Drain(fn func(topic string, payload []byte)) int
}

// Dispatcher routes a decoded event to its handler and reports whether a
// handler ran. *command.Table satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, e event.Event) bool
}

// Observation describes one processed inbound message.
type Observation struct {
	Topic      string
	AuditTopic string
	Event      event.Event
	Payload    []byte
	Handled    bool
	AuditErr   error
	ReceivedAt time.Time
}

// Observer is notified after each inbound message has been dispatched and
// audited. It runs under the manager lock and must not call back into the
// manager.
type Observer interface {
	Observe(ctx context.Context, o Observation)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, o Observation)

// Observe calls f(ctx, o).
func (f ObserverFunc) Observe(ctx context.Context, o Observation) { f(ctx, o) }

// Logger defines the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager. Transport, Dispatcher and CommandTopic are
// required; zero values elsewhere take the defaults.
type Options struct {
	Transport    Transport
	Dispatcher   Dispatcher
	CommandTopic string

	AuditPrefix    string
	ClientIDPrefix string
	SocketTimeout  time.Duration
	RetryDelay     time.Duration

	// BackOff overrides the fixed RetryDelay policy.
	BackOff backoff.BackOff

	Observer Observer
	Logger   Logger

	// Sleep waits between attempts in Poll and Run. Defaults to a
	// context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager maintains the single broker session and routes inbound messages.
type Manager struct {
	mu sync.Mutex

	transport    Transport
	dispatcher   Dispatcher
	observer     Observer
	logger       Logger
	backOff      backoff.BackOff
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	commandTopic string
	auditPrefix  string
	auditTopic   string
	clientPrefix string
	timeout      time.Duration
	retryDelay   time.Duration

	state       State
	clientID    string
	connectedAt time.Time
	lastErr     error
	attempts    uint64
	failures    uint64
	messages    uint64
	handled     uint64
	auditErrors uint64

	current atomic.Int32
	status  atomic.Pointer[Status]
}

// New creates a Manager in the Disconnected state.
func New(opts Options) (*Manager, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if opts.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	if opts.CommandTopic == "" {
		return nil, ErrNoCommandTopic
	}

	m := &Manager{
		transport:    opts.Transport,
		dispatcher:   opts.Dispatcher,
		observer:     opts.Observer,
		logger:       opts.Logger,
		backOff:      opts.BackOff,
		sleep:        opts.Sleep,
		now:          opts.Now,
		commandTopic: opts.CommandTopic,
		clientPrefix: opts.ClientIDPrefix,
		timeout:      opts.SocketTimeout,
		retryDelay:   opts.RetryDelay,
		state:        Disconnected,
	}

	m.auditPrefix = opts.AuditPrefix
	if m.auditPrefix == "" {
		m.auditPrefix = DefaultAuditPrefix
	}
	m.auditTopic = AuditTopic(m.auditPrefix, opts.CommandTopic)

	if m.logger == nil {
		m.logger = noopLogger{}
	}
	if m.clientPrefix == "" {
		m.clientPrefix = DefaultClientIDPrefix
	}
	if m.timeout <= 0 {
		m.timeout = DefaultSocketTimeout
	}
	if m.retryDelay <= 0 {
		m.retryDelay = DefaultRetryDelay
	}
	if m.backOff == nil {
		m.backOff = backoff.NewConstantBackOff(m.retryDelay)
	}
	if m.sleep == nil {
		m.sleep = sleepContext
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.publishStatus()
	metrics.SetSessionState(Disconnected.String())

	return m, nil
}

// AuditTopic returns the audit address for topic: prefix followed by the
// topic, with a separating slash when the topic does not start with one.
func AuditTopic(prefix, topic string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(topic, "/") {
		return prefix + "/" + topic
	}
	return prefix + topic
}

// State returns the current session state without taking the lock.
func (m *Manager) State() State {
	return State(m.current.Load())
}

// Status returns a snapshot of the manager without taking the lock.
func (m *Manager) Status() Status {
	return *m.status.Load()
}

// View runs fn while holding the manager lock, so fn observes state that
// no step is modifying.
func (m *Manager) View(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// AttemptConnect makes exactly one connection attempt if the session is
// not already up.
//
// On success the command topic is subscribed and the Result is Connected.
// On failure, including a failed subscription, the Result is Disconnected
// with RetryAfter set to the fixed retry delay.
func (m *Manager) AttemptConnect(ctx context.Context) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Connected {
		return Result{State: Connected}
	}
	return m.attemptLocked(ctx)
}

// Step advances the state machine by one unit of work: it detects a lost
// session, makes one connection attempt when disconnected, and drains
// pending messages when connected.
func (m *Manager) Step(ctx context.Context) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Connected && !m.transport.IsConnected() {
		m.logger.Warn("broker session lost", "client_id", m.clientID)
		m.lastErr = ErrSessionLost
		m.setStateLocked(Disconnected)
	}

	if m.state != Connected {
		r := m.attemptLocked(ctx)
		if r.State != Connected {
			return r
		}
	}

	n := m.transport.Drain(func(topic string, payload []byte) {
		m.processLocked(ctx, topic, payload)
	})
	if n > 0 {
		m.publishStatus()
	}

	return Result{State: Connected, Delivered: n}
}

// Poll ensures a live session, waiting the retry delay between failed
// attempts, then drains pending messages once. It returns only when
// connected or when ctx is done.
func (m *Manager) Poll(ctx context.Context) error {
	for {
		r := m.Step(ctx)
		if r.State == Connected {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.sleep(ctx, r.RetryAfter); err != nil {
			return err
		}
	}
}

// Run calls Step until ctx is done, waiting idle between steps that
// delivered nothing and RetryAfter between failed attempts.
func (m *Manager) Run(ctx context.Context, idle time.Duration) error {
	for {
		r := m.Step(ctx)

		wait := idle
		switch {
		case r.State != Connected:
			wait = r.RetryAfter
		case r.Delivered > 0:
			wait = 0
		}

		if ctx.Err() != nil {
			return nil
		}
		if wait <= 0 {
			continue
		}
		if m.sleep(ctx, wait) != nil {
			return nil
		}
	}
}

// Close ends the session if one is open.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Connected {
		m.transport.Disconnect()
		m.logger.Info("broker session closed", "client_id", m.clientID)
	}
	m.setStateLocked(Disconnected)
}

func (m *Manager) attemptLocked(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Result{State: m.state, Err: err}
	}

	m.setStateLocked(Connecting)
	m.attempts++

	clientID := m.newClientID()
	m.logger.Debug("connecting to broker", "client_id", clientID, "timeout", m.timeout)

	err := m.transport.Connect(clientID, m.timeout)
	if err == nil {
		if subErr := m.transport.Subscribe(m.commandTopic); subErr != nil {
			m.transport.Disconnect()
			err = fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, m.commandTopic, subErr)
		}
	}

	metrics.RecordConnectAttempt(err == nil)

	if err != nil {
		m.failures++
		m.lastErr = err
		m.setStateLocked(Disconnected)

		delay := m.backOff.NextBackOff()
		if delay == backoff.Stop || delay <= 0 {
			delay = m.retryDelay
		}

		m.logger.Warn("broker connection failed",
			"client_id", clientID,
			"attempt", m.attempts,
			"retry_after", delay,
			"error", err,
		)
		return Result{State: Disconnected, RetryAfter: delay, Err: err}
	}

	m.backOff.Reset()
	m.clientID = clientID
	m.connectedAt = m.now()
	m.lastErr = nil
	m.setStateLocked(Connected)

	m.logger.Info("connected to broker",
		"client_id", clientID,
		"command_topic", m.commandTopic,
		"audit_topic", m.auditTopic,
	)
	return Result{State: Connected}
}

// processLocked runs one inbound message through decode, dispatch and
// audit.
func (m *Manager) processLocked(ctx context.Context, topic string, payload []byte) {
	received := m.now()
	m.messages++

	e := event.Decode(topic, payload)
	handled := m.dispatch(ctx, e)
	if handled {
		m.handled++
	}

	auditTopic := AuditTopic(m.auditPrefix, topic)
	auditErr := m.transport.Publish(auditTopic, payload)
	if auditErr != nil {
		m.auditErrors++
		m.logger.Error("audit publish failed",
			"topic", auditTopic,
			"uuid", e.UUID,
			"error", auditErr,
		)
	}

	metrics.RecordMessage(e.Type, handled)
	metrics.RecordAuditPublish(auditErr == nil)

	m.logger.Debug("command message processed",
		"topic", topic,
		"uuid", e.UUID,
		"type", e.Type,
		"source", e.Source,
		"handled", handled,
	)

	if m.observer != nil {
		m.observer.Observe(ctx, Observation{
			Topic:      topic,
			AuditTopic: auditTopic,
			Event:      e,
			Payload:    payload,
			Handled:    handled,
			AuditErr:   auditErr,
			ReceivedAt: received,
		})
	}
}

// dispatch calls the dispatcher, turning a handler panic into an
// unhandled message.
func (m *Manager) dispatch(ctx context.Context, e event.Event) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordHandlerPanic()
			m.logger.Error("command handler panicked",
				"uuid", e.UUID,
				"type", e.Type,
				"panic", fmt.Sprint(r),
			)
			handled = false
		}
	}()
	return m.dispatcher.Dispatch(ctx, e)
}

func (m *Manager) newClientID() string {
	return fmt.Sprintf("%s%x", m.clientPrefix, rand.IntN(0x10000))
}

func (m *Manager) setStateLocked(s State) {
	if m.state != s {
		m.state = s
		m.current.Store(int32(s))
		metrics.SetSessionState(s.String())
	}
	m.publishStatus()
}

func (m *Manager) publishStatus() {
	s := &Status{
		State:        m.state.String(),
		ClientID:     m.clientID,
		CommandTopic: m.commandTopic,
		AuditTopic:   m.auditTopic,
		Attempts:     m.attempts,
		Failures:     m.failures,
		Messages:     m.messages,
		Handled:      m.handled,
		AuditErrors:  m.auditErrors,
	}
	if m.state == Connected {
		s.ConnectedAt = m.connectedAt
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	m.status.Store(s)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
