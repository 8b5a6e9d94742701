// Package model contains the domain models shared by the chat bridge: routing keys,
// log records and envelopes, and the persisted chat threads and messages.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// tablePrefix is the default prefix of every chat table.
const tablePrefix = "chat_"

const routingKeySeparator = ":"

// ErrInvalidRoutingKey is returned when a routing key is empty or cannot be parsed.
var ErrInvalidRoutingKey = errors.New("invalid routing key")

// RoutingKey identifies one conversation. It is used both as the log record key
// and as the registry lookup key, and never changes once a message is produced.
//
// Keys built by NewRoutingKey have the form "<user_id>:<thread_id>".
type RoutingKey string

// NewRoutingKey returns the routing key of a user's chat thread.
func NewRoutingKey(userID, threadID uuid.UUID) RoutingKey {
	return RoutingKey(userID.String() + routingKeySeparator + threadID.String())
}

// ParseRoutingKey splits a "<user_id>:<thread_id>" key back into its ids.
func ParseRoutingKey(key RoutingKey) (userID, threadID uuid.UUID, err error) {
	user, thread, ok := strings.Cut(string(key), routingKeySeparator)
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidRoutingKey, key)
	}
	if userID, err = uuid.Parse(user); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: user id: %v", ErrInvalidRoutingKey, err)
	}
	if threadID, err = uuid.Parse(thread); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: thread id: %v", ErrInvalidRoutingKey, err)
	}
	return userID, threadID, nil
}

// Validate checks that the key can be used for routing.
// Any non-empty key is routable; only keys built by NewRoutingKey can be parsed.
func (k RoutingKey) Validate() error {
	if strings.TrimSpace(string(k)) == "" {
		return ErrInvalidRoutingKey
	}
	return nil
}

// String implements fmt.Stringer.
func (k RoutingKey) String() string {
	return string(k)
}
