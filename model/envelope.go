package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Position is the broker-assigned coordinate of a record.
// It is only used to acknowledge the record; application logic never interprets it.
type Position struct {
	Topic       string `json:"topic"`
	Partition   int32  `json:"partition"`
	Offset      int64  `json:"offset"`
	LeaderEpoch int32  `json:"leaderEpoch"`
}

// String returns "topic-partition@offset", for logs.
func (p Position) String() string {
	return fmt.Sprintf("%s-%d@%d", p.Topic, p.Partition, p.Offset)
}

// Record is one raw record as returned by the durable log client.
type Record struct {
	Key      []byte
	Value    []byte
	Position Position
}

// Envelope is the unit moving through the log: a payload addressed to one routing key.
type Envelope struct {
	RoutingKey RoutingKey      `json:"routing_key"`
	Payload    json.RawMessage `json:"payload"`
	Position   Position        `json:"-"`
}

// Decoding errors.
var (
	ErrEmptyRecord       = errors.New("empty record")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrMissingRoutingKey = errors.New("record has no routing key")
)

// EncodeEnvelope serializes payload for the given key into the wire value
// {"routing_key": "...", "payload": ...}.
func EncodeEnvelope(key RoutingKey, payload any) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	} else if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrMalformedRecord)
	}
	return json.Marshal(Envelope{RoutingKey: key, Payload: raw})
}

// DecodeEnvelope turns a record into an Envelope.
//
// Accepted values:
//   - {"routing_key": "...", "payload": ...}; the record key is used when routing_key is absent
//   - the legacy chat event {"user_id": "...", "chat_thread_id": "...", ...}; the whole
//     object is the payload and the key is "<user_id>:<chat_thread_id>"
//   - any other JSON value, if the record carries a key
//
// The payload is returned compacted: it never contains a raw line break.
func DecodeEnvelope(rec Record) (Envelope, error) {
	value := bytes.TrimSpace(rec.Value)
	if len(value) == 0 {
		return Envelope{}, ErrEmptyRecord
	}
	if !json.Valid(value) {
		return Envelope{}, ErrMalformedRecord
	}

	env := Envelope{Position: rec.Position}

	var fields map[string]json.RawMessage
	if value[0] == '{' {
		if err := json.Unmarshal(value, &fields); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
	}

	if payload, ok := fields["payload"]; ok {
		var key RoutingKey
		if raw, ok := fields["routing_key"]; ok {
			if err := json.Unmarshal(raw, &key); err != nil {
				return Envelope{}, fmt.Errorf("%w: routing_key: %v", ErrMalformedRecord, err)
			}
		}
		if key == "" {
			key = RoutingKey(rec.Key)
		}
		env.RoutingKey = key
		env.Payload = payload
	} else if key, ok := legacyRoutingKey(fields); ok {
		env.RoutingKey = key
		env.Payload = json.RawMessage(value)
	} else {
		env.RoutingKey = RoutingKey(rec.Key)
		env.Payload = json.RawMessage(value)
	}

	if env.RoutingKey.Validate() != nil {
		return Envelope{}, ErrMissingRoutingKey
	}

	// Payloads travel as single-line events, so insignificant whitespace goes.
	var compact bytes.Buffer
	if err := json.Compact(&compact, env.Payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	env.Payload = compact.Bytes()
	return env, nil
}

func legacyRoutingKey(fields map[string]json.RawMessage) (RoutingKey, bool) {
	var user, thread string
	if json.Unmarshal(fields["user_id"], &user) != nil || json.Unmarshal(fields["chat_thread_id"], &thread) != nil {
		return "", false
	}
	if user == "" || thread == "" {
		return "", false
	}
	return RoutingKey(user + routingKeySeparator + thread), true
}
