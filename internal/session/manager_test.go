package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/lightmanager/lightmanager/internal/channel"
	"github.com/lightmanager/lightmanager/internal/command"
	"github.com/lightmanager/lightmanager/internal/event"
)

const testTopic = "/hq/main/lights"

type message struct {
	topic   string
	payload []byte
}

// fakeTransport simulates a broker connection. Connect fails for the first
// failConnect calls.
type fakeTransport struct {
	failConnect  int
	subscribeErr error
	publishErr   error

	connected   bool
	clientIDs   []string
	timeouts    []time.Duration
	subscribed  []string
	published   []message
	inbox       []message
	disconnects int
}

func (f *fakeTransport) Connect(clientID string, timeout time.Duration) error {
	f.clientIDs = append(f.clientIDs, clientID)
	f.timeouts = append(f.timeouts, timeout)
	if f.failConnect > 0 {
		f.failConnect--
		return errors.New("connection refused")
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.disconnects++
	f.connected = false
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Subscribe(topic string) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte) error {
	f.published = append(f.published, message{topic: topic, payload: bytes.Clone(payload)})
	return f.publishErr
}

func (f *fakeTransport) Drain(fn func(topic string, payload []byte)) int {
	msgs := f.inbox
	f.inbox = nil
	for _, m := range msgs {
		fn(m.topic, m.payload)
	}
	return len(msgs)
}

func (f *fakeTransport) deliver(topic, payload string) {
	f.inbox = append(f.inbox, message{topic: topic, payload: []byte(payload)})
}

// recordingDispatcher records events and reports a fixed outcome.
type recordingDispatcher struct {
	handled bool
	panics  bool
	events  []event.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e event.Event) bool {
	d.events = append(d.events, e)
	if d.panics {
		panic("handler exploded")
	}
	return d.handled
}

// sleepRecorder records requested waits without sleeping.
type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestManager(t *testing.T, tr *fakeTransport, d Dispatcher, opts ...func(*Options)) (*Manager, *sleepRecorder) {
	t.Helper()
	sr := &sleepRecorder{}
	o := Options{
		Transport:    tr,
		Dispatcher:   d,
		CommandTopic: testTopic,
		Sleep:        sr.sleep,
	}
	for _, fn := range opts {
		fn(&o)
	}
	m, err := New(o)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, sr
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"no transport", Options{Dispatcher: &recordingDispatcher{}, CommandTopic: testTopic}, ErrNoTransport},
		{"no dispatcher", Options{Transport: &fakeTransport{}, CommandTopic: testTopic}, ErrNoDispatcher},
		{"no topic", Options{Transport: &fakeTransport{}, Dispatcher: &recordingDispatcher{}}, ErrNoCommandTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_StartsDisconnected(t *testing.T) {
	m, _ := newTestManager(t, &fakeTransport{}, &recordingDispatcher{})

	if m.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}
	st := m.Status()
	if st.AuditTopic != "/audit/hq/main/lights" {
		t.Errorf("Status().AuditTopic = %q, want /audit/hq/main/lights", st.AuditTopic)
	}
}

func TestAttemptConnect_Success(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(t, tr, &recordingDispatcher{})

	r := m.AttemptConnect(context.Background())

	if r.State != Connected || r.Err != nil || r.RetryAfter != 0 {
		t.Fatalf("AttemptConnect() = %+v, want connected", r)
	}
	if len(tr.subscribed) != 1 || tr.subscribed[0] != testTopic {
		t.Errorf("subscribed = %v, want [%s]", tr.subscribed, testTopic)
	}
	if tr.timeouts[0] != 60*time.Second {
		t.Errorf("timeout = %v, want 60s", tr.timeouts[0])
	}
	if !strings.HasPrefix(tr.clientIDs[0], DefaultClientIDPrefix) {
		t.Errorf("client id %q lacks prefix %q", tr.clientIDs[0], DefaultClientIDPrefix)
	}
	if m.Status().ClientID != tr.clientIDs[0] {
		t.Errorf("Status().ClientID = %q, want %q", m.Status().ClientID, tr.clientIDs[0])
	}

	// Already connected: no further attempt.
	m.AttemptConnect(context.Background())
	if len(tr.clientIDs) != 1 {
		t.Errorf("Connect calls = %d, want 1", len(tr.clientIDs))
	}
}

func TestAttemptConnect_FailureReturnsRetryAfter(t *testing.T) {
	tr := &fakeTransport{failConnect: 1}
	m, sr := newTestManager(t, tr, &recordingDispatcher{})

	r := m.AttemptConnect(context.Background())

	if r.State != Disconnected {
		t.Errorf("State = %v, want disconnected", r.State)
	}
	if r.RetryAfter != 5*time.Second {
		t.Errorf("RetryAfter = %v, want 5s", r.RetryAfter)
	}
	if r.Err == nil {
		t.Error("Err = nil, want connection error")
	}
	if len(sr.waits) != 0 {
		t.Errorf("AttemptConnect slept %v, want no waits", sr.waits)
	}
	if len(tr.subscribed) != 0 {
		t.Errorf("subscribed after failed connect: %v", tr.subscribed)
	}

	st := m.Status()
	if st.Attempts != 1 || st.Failures != 1 || st.LastError == "" {
		t.Errorf("Status() = %+v, want one failed attempt", st)
	}
}

func TestAttemptConnect_SubscribeFailureIsFailedAttempt(t *testing.T) {
	tr := &fakeTransport{subscribeErr: errors.New("not authorised")}
	m, _ := newTestManager(t, tr, &recordingDispatcher{})

	r := m.AttemptConnect(context.Background())

	if r.State != Disconnected || r.RetryAfter != 5*time.Second {
		t.Errorf("AttemptConnect() = %+v, want disconnected with 5s retry", r)
	}
	if !errors.Is(r.Err, ErrSubscribeFailed) {
		t.Errorf("Err = %v, want ErrSubscribeFailed", r.Err)
	}
	if tr.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", tr.disconnects)
	}
}

func TestAttemptConnect_ClientIDChangesPerAttempt(t *testing.T) {
	tr := &fakeTransport{failConnect: 20}
	m, _ := newTestManager(t, tr, &recordingDispatcher{}, func(o *Options) {
		o.ClientIDPrefix = "ESP8266-"
	})

	for range 20 {
		m.AttemptConnect(context.Background())
	}

	seen := make(map[string]bool)
	for _, id := range tr.clientIDs {
		if !strings.HasPrefix(id, "ESP8266-") {
			t.Fatalf("client id %q lacks prefix", id)
		}
		if len(id) > len("ESP8266-")+4 {
			t.Fatalf("client id %q has more than 4 hex digits", id)
		}
		seen[id] = true
	}
	if len(seen) < 2 {
		t.Errorf("20 attempts produced %d distinct client ids", len(seen))
	}
}

func TestPoll_RetriesUntilConnected(t *testing.T) {
	tr := &fakeTransport{failConnect: 2}
	d := &recordingDispatcher{}
	m, sr := newTestManager(t, tr, d)
	tr.deliver(testTopic, `{"type":"PING"}`)

	if err := m.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if len(sr.waits) != 2 {
		t.Fatalf("waits = %v, want exactly 2", sr.waits)
	}
	for i, w := range sr.waits {
		if w != 5*time.Second {
			t.Errorf("waits[%d] = %v, want 5s", i, w)
		}
	}
	if len(tr.clientIDs) != 3 {
		t.Errorf("Connect calls = %d, want 3", len(tr.clientIDs))
	}
	if len(tr.subscribed) != 1 {
		t.Errorf("Subscribe calls = %d, want 1", len(tr.subscribed))
	}
	if m.State() != Connected {
		t.Errorf("State() = %v, want connected", m.State())
	}
	// Normal dispatch resumes in the same poll.
	if len(d.events) != 1 || len(tr.published) != 1 {
		t.Errorf("events = %d, published = %d; want 1 and 1", len(d.events), len(tr.published))
	}
}

func TestPoll_ConnectedDoesNotReconnect(t *testing.T) {
	tr := &fakeTransport{}
	m, sr := newTestManager(t, tr, &recordingDispatcher{})

	for range 3 {
		if err := m.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
	}

	if len(tr.clientIDs) != 1 || len(sr.waits) != 0 {
		t.Errorf("Connect calls = %d, waits = %v; want 1 and none", len(tr.clientIDs), sr.waits)
	}
}

func TestPoll_Cancelled(t *testing.T) {
	tr := &fakeTransport{failConnect: 1 << 30}
	m, _ := newTestManager(t, tr, &recordingDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	m.sleep = func(ctx context.Context, _ time.Duration) error {
		attempts++
		if attempts == 3 {
			cancel()
		}
		return ctx.Err()
	}

	err := m.Poll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Poll() error = %v, want context.Canceled", err)
	}
	if len(tr.clientIDs) != 3 {
		t.Errorf("Connect calls = %d, want 3", len(tr.clientIDs))
	}
}

func TestStep_DetectsLossAndReconnects(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(t, tr, &recordingDispatcher{})

	if r := m.Step(context.Background()); r.State != Connected {
		t.Fatalf("Step() = %+v, want connected", r)
	}

	tr.connected = false
	tr.failConnect = 1

	r := m.Step(context.Background())
	if r.State != Disconnected || r.RetryAfter != 5*time.Second {
		t.Fatalf("Step() after loss = %+v, want disconnected with 5s retry", r)
	}

	r = m.Step(context.Background())
	if r.State != Connected {
		t.Fatalf("Step() = %+v, want reconnected", r)
	}
	if len(tr.subscribed) != 2 {
		t.Errorf("Subscribe calls = %d, want 2 (once per session)", len(tr.subscribed))
	}
}

func TestStep_AuditsEveryMessageOnce(t *testing.T) {
	tr := &fakeTransport{}
	d := &recordingDispatcher{}
	m, _ := newTestManager(t, tr, d)
	m.AttemptConnect(context.Background())

	payloads := []string{
		`{"uuid":"u1","type":"TOGGLE","timestamp":1,"source":"app","value":"{\"target\":1,\"state\":1}"}`,
		`not-json-at-all`,
		``,
		`{"type":"UNKNOWN"}`,
	}
	for _, p := range payloads {
		tr.deliver(testTopic, p)
	}

	r := m.Step(context.Background())
	if r.Delivered != len(payloads) {
		t.Fatalf("Delivered = %d, want %d", r.Delivered, len(payloads))
	}

	if len(tr.published) != len(payloads) {
		t.Fatalf("published = %d, want %d", len(tr.published), len(payloads))
	}
	for i, p := range payloads {
		got := tr.published[i]
		if got.topic != "/audit/hq/main/lights" {
			t.Errorf("published[%d].topic = %q", i, got.topic)
		}
		if !bytes.Equal(got.payload, []byte(p)) {
			t.Errorf("published[%d].payload = %q, want %q", i, got.payload, p)
		}
	}

	if d.events[1].Type != "" {
		t.Errorf("malformed payload decoded with type %q", d.events[1].Type)
	}

	if got := m.Status().Messages; got != uint64(len(payloads)) {
		t.Errorf("Status().Messages = %d, want %d", got, len(payloads))
	}
}

func TestStep_HandlerPanicStillAudits(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(t, tr, &recordingDispatcher{panics: true})
	m.AttemptConnect(context.Background())
	tr.deliver(testTopic, `{"type":"TOGGLE"}`)

	var obs []Observation
	m.observer = ObserverFunc(func(_ context.Context, o Observation) { obs = append(obs, o) })

	r := m.Step(context.Background())

	if r.Delivered != 1 || len(tr.published) != 1 {
		t.Fatalf("Delivered = %d, published = %d; want 1 and 1", r.Delivered, len(tr.published))
	}
	if len(obs) != 1 || obs[0].Handled {
		t.Errorf("observations = %+v, want one unhandled", obs)
	}
}

func TestStep_AuditFailureObserved(t *testing.T) {
	tr := &fakeTransport{publishErr: errors.New("not connected")}
	var obs []Observation
	m, _ := newTestManager(t, tr, &recordingDispatcher{handled: true}, func(o *Options) {
		o.Observer = ObserverFunc(func(_ context.Context, o Observation) { obs = append(obs, o) })
	})
	m.AttemptConnect(context.Background())
	tr.deliver(testTopic, `{"uuid":"u9","type":"TOGGLE"}`)

	m.Step(context.Background())

	if len(obs) != 1 {
		t.Fatalf("observations = %d, want 1", len(obs))
	}
	o := obs[0]
	if o.AuditErr == nil || !o.Handled || o.Event.UUID != "u9" {
		t.Errorf("observation = %+v", o)
	}
	if o.AuditTopic != "/audit/hq/main/lights" {
		t.Errorf("AuditTopic = %q", o.AuditTopic)
	}
	if m.Status().AuditErrors != 1 {
		t.Errorf("Status().AuditErrors = %d, want 1", m.Status().AuditErrors)
	}
}

func TestAuditTopic(t *testing.T) {
	tests := []struct {
		prefix, topic, want string
	}{
		{"/audit", "/hq/main/lights", "/audit/hq/main/lights"},
		{"/audit", "hq/main/lights", "/audit/hq/main/lights"},
		{"/audit/", "/hq/main/lights", "/audit/hq/main/lights"},
		{"audit", "lights", "audit/lights"},
	}

	for _, tt := range tests {
		if got := AuditTopic(tt.prefix, tt.topic); got != tt.want {
			t.Errorf("AuditTopic(%q, %q) = %q, want %q", tt.prefix, tt.topic, got, tt.want)
		}
	}
}

func TestClose(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(t, tr, &recordingDispatcher{})
	m.AttemptConnect(context.Background())

	m.Close()

	if tr.disconnects != 1 || m.State() != Disconnected {
		t.Errorf("disconnects = %d, state = %v; want 1 and disconnected", tr.disconnects, m.State())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := &fakeTransport{failConnect: 1}
	m, err := New(Options{
		Transport:    tr,
		Dispatcher:   &recordingDispatcher{},
		CommandTopic: testTopic,
		RetryDelay:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()

	deadline := time.After(5 * time.Second)
	for m.State() != Connected {
		select {
		case <-deadline:
			cancel()
			t.Fatal("Run did not connect")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if len(tr.clientIDs) != 2 {
		t.Errorf("Connect calls = %d, want 2", len(tr.clientIDs))
	}
}

// TestPipeline_ToggleScenarios drives the full decode → dispatch → audit
// path with the real toggle handler and channel registry.
func TestPipeline_ToggleScenarios(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[int]channel.State
	}{
		{
			name:  "single channel toggled",
			input: `{"uuid":"u1","type":"TOGGLE","timestamp":1,"source":"app","value":"{\"target\":1,\"state\":1}"}`,
			want:  map[int]channel.State{1: channel.Deasserted, 2: channel.Deasserted},
		},
		{
			name:  "broadcast state 1",
			input: `{"uuid":"u2","type":"TOGGLE","timestamp":2,"source":"app","value":"{\"target\":0,\"state\":1}"}`,
			want:  map[int]channel.State{1: channel.Deasserted, 2: channel.Deasserted},
		},
		{
			name:  "unknown target",
			input: `{"uuid":"u3","type":"TOGGLE","timestamp":3,"source":"app","value":"{\"target\":99,\"state\":1}"}`,
			want:  map[int]channel.State{1: channel.Asserted, 2: channel.Deasserted},
		},
		{
			name:  "malformed payload",
			input: `not-json-at-all`,
			want:  map[int]channel.State{1: channel.Asserted, 2: channel.Deasserted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := channel.NewRegistry([]channel.Binding{
				{ID: 1, Pin: "D1", Initial: channel.Asserted},
				{ID: 2, Pin: "D2"},
			}, nil)
			if err != nil {
				t.Fatalf("NewRegistry() error = %v", err)
			}
			table := command.NewTable()
			if err := table.Register(command.TypeToggle, command.NewToggle(reg)); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			tr := &fakeTransport{}
			m, _ := newTestManager(t, tr, table)
			tr.deliver(testTopic, tt.input)

			if err := m.Poll(context.Background()); err != nil {
				t.Fatalf("Poll() error = %v", err)
			}

			m.View(func() {
				for id, want := range tt.want {
					ch, _ := reg.Lookup(id)
					if ch.State != want {
						t.Errorf("channel %d = %v, want %v", id, ch.State, want)
					}
				}
			})

			if len(tr.published) != 1 {
				t.Fatalf("published = %d, want 1", len(tr.published))
			}
			if tr.published[0].topic != "/audit/hq/main/lights" || string(tr.published[0].payload) != tt.input {
				t.Errorf("audit = %q %q, want exact input on /audit/hq/main/lights",
					tr.published[0].topic, tr.published[0].payload)
			}
		})
	}
}
