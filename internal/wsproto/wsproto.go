// Package wsproto defines the tiny WebSocket framing the gateway and its
// clients exchange: a subscribe handshake keyed by room_id, followed by a
// stream of pushed ChatMessage frames (spec.md §4.3 "Connection lifecycle").
package wsproto

import "github.com/chatsim/chatsim/internal/chatmodel"

const (
	TypeSubscribe = "subscribe"
	TypeSubscribed = "subscribed"
	TypeMessage    = "message"
)

// SubscribeFrame is sent by a client immediately after connecting.
type SubscribeFrame struct {
	Type   string `json:"type"` // TypeSubscribe
	RoomID string `json:"room_id"`
}

// SubscribedFrame acknowledges a subscription.
type SubscribedFrame struct {
	Type   string `json:"type"` // TypeSubscribed
	RoomID string `json:"room_id"`
}

// MessageFrame wraps a broadcasted ChatMessage for delivery to subscribers.
type MessageFrame struct {
	Type    string                `json:"type"` // TypeMessage
	Message chatmodel.ChatMessage `json:"message"`
}
