package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

const commandTopic = "/hq/main/lights"

func TestDecode_WellFormed(t *testing.T) {
	payload := []byte(`{"uuid":"u1","type":"TOGGLE","timestamp":1,"source":"app","value":"{\"target\":1,\"state\":1}"}`)

	got := Decode(commandTopic, payload)

	want := Event{
		UUID:      "u1",
		Type:      "TOGGLE",
		Timestamp: 1,
		Source:    "app",
		Value:     `{"target":1,"state":1}`,
		Topic:     commandTopic,
	}
	if got != want {
		t.Errorf("Decode() = %+v, want %+v", got, want)
	}
}

func TestDecode_Tolerant(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
	}{
		{
			name:    "not json",
			payload: "not-json-at-all",
			want:    Event{Topic: commandTopic},
		},
		{
			name:    "empty payload",
			payload: "",
			want:    Event{Topic: commandTopic},
		},
		{
			name:    "truncated document",
			payload: `{"uuid":"u1","type":"TOG`,
			want:    Event{Topic: commandTopic},
		},
		{
			name:    "array document",
			payload: `[1,2,3]`,
			want:    Event{Topic: commandTopic},
		},
		{
			name:    "null document",
			payload: `null`,
			want:    Event{Topic: commandTopic},
		},
		{
			name:    "missing fields",
			payload: `{"type":"TOGGLE"}`,
			want:    Event{Type: "TOGGLE", Topic: commandTopic},
		},
		{
			name:    "wrong field types isolated",
			payload: `{"uuid":7,"type":"TOGGLE","timestamp":"soon","source":["x"],"value":true}`,
			want:    Event{Type: "TOGGLE", Topic: commandTopic},
		},
		{
			name:    "timestamp above int64 range",
			payload: `{"type":"TOGGLE","timestamp":1e30}`,
			want:    Event{Type: "TOGGLE", Topic: commandTopic},
		},
		{
			name:    "timestamp below int64 range",
			payload: `{"timestamp":-9.3e18}`,
			want:    Event{Topic: commandTopic},
		},
		{
			name:    "integer overflow falls back to zero",
			payload: `{"timestamp":99999999999999999999}`,
			want:    Event{Topic: commandTopic},
		},
		{
			name:    "fractional timestamp truncated",
			payload: `{"timestamp":1700000000.9}`,
			want:    Event{Timestamp: 1700000000, Topic: commandTopic},
		},
		{
			name:    "object value kept as compact json",
			payload: `{"type":"TOGGLE","value":{ "target" : 2, "state" : 0 }}`,
			want:    Event{Type: "TOGGLE", Value: `{"target":2,"state":0}`, Topic: commandTopic},
		},
		{
			name:    "unknown fields ignored",
			payload: `{"type":"PING","extra":{"a":1}}`,
			want:    Event{Type: "PING", Topic: commandTopic},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(commandTopic, []byte(tt.payload))
			if got != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestDecode_UUIDTruncated(t *testing.T) {
	long := strings.Repeat("a", 50)
	got := Decode(commandTopic, []byte(`{"uuid":"`+long+`"}`))

	if len(got.UUID) != UUIDCapacity-1 {
		t.Errorf("len(UUID) = %d, want %d", len(got.UUID), UUIDCapacity-1)
	}
}

func TestDecode_UUIDTruncatedOnRuneBoundary(t *testing.T) {
	// 34 ASCII bytes followed by a 3-byte rune: byte 35 falls inside the rune.
	uuid := strings.Repeat("a", 34) + "€"
	got := Decode(commandTopic, []byte(`{"uuid":"`+uuid+`"}`))

	if got.UUID != strings.Repeat("a", 34) {
		t.Errorf("UUID = %q, want 34 a's", got.UUID)
	}
}

func TestDecode_Oversize(t *testing.T) {
	payload := append([]byte(`{"type":"TOGGLE","source":"`), bytes.Repeat([]byte("x"), MaxPayloadSize)...)
	payload = append(payload, []byte(`"}`)...)

	got := Decode(commandTopic, payload)
	if got.Type != "" {
		t.Errorf("Type = %q, want empty for oversize payload", got.Type)
	}
}

func TestDecode_OwnsStrings(t *testing.T) {
	payload := []byte(`{"uuid":"u1","type":"TOGGLE","source":"app"}`)
	got := Decode(commandTopic, payload)

	for i := range payload {
		payload[i] = 'x'
	}

	if got.UUID != "u1" || got.Type != "TOGGLE" || got.Source != "app" {
		t.Errorf("Event changed after payload reuse: %+v", got)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	e := Event{
		UUID:      "u1",
		Type:      "TOGGLE",
		Timestamp: 1700000000,
		Source:    "app",
		Value:     `{"target":1,"state":1}`,
		Topic:     commandTopic,
	}

	out := Encode(e, 0)

	var fields map[string]any
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatalf("Encode() produced invalid JSON %q: %v", out, err)
	}
	for _, key := range []string{"uuid", "type", "timestamp", "source", "value", "topic"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("encoded document missing %q", key)
		}
	}

	if back := Decode(commandTopic, out); back != e {
		t.Errorf("Decode(Encode(e)) = %+v, want %+v", back, e)
	}
}

func TestEncode_Truncates(t *testing.T) {
	e := Event{Type: "TOGGLE", Source: strings.Repeat("s", 100)}

	out := Encode(e, 32)
	if len(out) != 32 {
		t.Errorf("len(Encode(e, 32)) = %d, want 32", len(out))
	}

	full := Encode(e, 1024)
	if !bytes.HasPrefix(full, out) {
		t.Errorf("truncated output %q is not a prefix of %q", out, full)
	}
}

func TestEncode_DefaultCapacity(t *testing.T) {
	e := Event{Value: strings.Repeat("v", 2*DefaultEncodeCapacity)}

	if got := len(Encode(e, -1)); got != DefaultEncodeCapacity {
		t.Errorf("len(Encode(e, -1)) = %d, want %d", got, DefaultEncodeCapacity)
	}
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"uuid":"u1","type":"TOGGLE","timestamp":1,"source":"app","value":"{}"}`))
	f.Add([]byte("not-json-at-all"))
	f.Add([]byte{0xff, 0x00, '{'})

	f.Fuzz(func(t *testing.T, payload []byte) {
		e := Decode(commandTopic, payload)
		if e.Topic != commandTopic {
			t.Errorf("Topic = %q, want %q", e.Topic, commandTopic)
		}
		if len(e.UUID) >= UUIDCapacity {
			t.Errorf("len(UUID) = %d, exceeds capacity", len(e.UUID))
		}
	})
}
