package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetSessionState(t *testing.T) {
	SetSessionState("connected")

	if got := testutil.ToFloat64(sessionState.WithLabelValues("connected")); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	for _, s := range []string{"disconnected", "connecting"} {
		if got := testutil.ToFloat64(sessionState.WithLabelValues(s)); got != 0 {
			t.Errorf("%s = %v, want 0", s, got)
		}
	}

	SetSessionState("disconnected")
	if got := testutil.ToFloat64(sessionState.WithLabelValues("connected")); got != 0 {
		t.Errorf("connected after disconnect = %v, want 0", got)
	}
}

func TestRecordConnectAttempt(t *testing.T) {
	before := testutil.ToFloat64(connectAttempts.WithLabelValues("failure"))

	RecordConnectAttempt(false)
	RecordConnectAttempt(false)

	if got := testutil.ToFloat64(connectAttempts.WithLabelValues("failure")) - before; got != 2 {
		t.Errorf("failure delta = %v, want 2", got)
	}
}

func TestRecordMessage_EmptyType(t *testing.T) {
	before := testutil.ToFloat64(messagesReceived.WithLabelValues("none", "false"))

	RecordMessage("", false)

	if got := testutil.ToFloat64(messagesReceived.WithLabelValues("none", "false")) - before; got != 1 {
		t.Errorf("none/false delta = %v, want 1", got)
	}
}

func TestRecordInboxDrop(t *testing.T) {
	before := testutil.ToFloat64(inboxDrops)

	RecordInboxDrop()

	if got := testutil.ToFloat64(inboxDrops) - before; got != 1 {
		t.Errorf("inbox drop delta = %v, want 1", got)
	}
}

func TestSetChannelState(t *testing.T) {
	SetChannelState("1", true)
	if got := testutil.ToFloat64(channelState.WithLabelValues("1")); got != 1 {
		t.Errorf("channel 1 = %v, want 1", got)
	}

	SetChannelState("1", false)
	if got := testutil.ToFloat64(channelState.WithLabelValues("1")); got != 0 {
		t.Errorf("channel 1 = %v, want 0", got)
	}
}

func TestPromhttpExposure(t *testing.T) {
	RecordAuditPublish(true)
	RecordHandlerPanic()
	RecordChannelWriteError("2")

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"lightmanager_audit_publishes_total",
		"lightmanager_handler_panics_total",
		"lightmanager_channel_write_errors_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("scrape missing %s", name)
		}
	}
}
