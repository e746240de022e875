// Package event converts raw command payloads to and from Event records.
//
// Decoding is total: any byte sequence produces an Event. Malformed or
// partial documents yield an Event with whatever fields could be read and
// zero values for the rest, so an unreadable payload never carries a type
// and is ignored by every command handler.
package event

import (
	"bytes"
	"encoding/json"
	"math"
	"unicode/utf8"
)

const (
	// UUIDCapacity is the storage reserved for the sender's uuid, including
	// the terminator slot. Decoded uuids keep at most UUIDCapacity-1 bytes.
	UUIDCapacity = 36

	// MaxPayloadSize bounds the payloads Decode will parse. Larger inputs
	// decode to an empty Event.
	MaxPayloadSize = 1 << 20

	// DefaultEncodeCapacity is used by Encode when capacity is not positive.
	DefaultEncodeCapacity = 512
)

// Event is one decoded command record. All fields are owned values; an
// Event stays valid after the payload it came from is reused.
type Event struct {
	UUID      string `json:"uuid"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
	Value     string `json:"value"`
	Topic     string `json:"topic"`
}

// Decode parses payload received on topic into an Event.
//
// Each field is read independently: a field with the wrong JSON type is
// left empty without affecting the others. A value sent as an object or
// array instead of a string is kept as its compact JSON text.
func Decode(topic string, payload []byte) Event {
	e := Event{Topic: topic}

	if len(payload) == 0 || len(payload) > MaxPayloadSize {
		return e
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return e
	}

	e.UUID = truncate(decodeString(fields["uuid"]), UUIDCapacity-1)
	e.Type = decodeString(fields["type"])
	e.Timestamp = decodeInt64(fields["timestamp"])
	e.Source = decodeString(fields["source"])
	e.Value = decodeValue(fields["value"])

	return e
}

// Encode serialises every field of e as JSON into a buffer of at most
// capacity bytes. Output that does not fit is cut off at capacity; no error
// is reported.
func Encode(e Event, capacity int) []byte {
	if capacity <= 0 {
		capacity = DefaultEncodeCapacity
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		// Event holds only strings and an int64.
		return nil
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if len(out) > capacity {
		out = out[:capacity]
	}
	return bytes.Clone(out)
}

func decodeString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func decodeInt64(raw json.RawMessage) int64 {
	if raw == nil {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		// Out-of-range conversions are platform dependent; treat them as absent.
		if f < math.MinInt64 || f >= -math.MinInt64 {
			return 0
		}
		return int64(f)
	}
	return 0
}

func decodeValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		return decodeString(raw)
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return ""
		}
		return buf.String()
	default:
		return ""
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
