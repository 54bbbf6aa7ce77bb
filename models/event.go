package models

import "time"

// EventKind describes a change to a conversation
type EventKind string

const (
	EventMessage EventKind = "message" // a message was appended
	EventToggle  EventKind = "toggle"  // sourcesExpanded flipped on Index
	EventClear   EventKind = "clear"   // the conversation was emptied
)

// Event is emitted for every conversation change. It is what the websocket
// bridge pushes to browsers and what the NATS mirror publishes.
type Event struct {
	Kind           EventKind `json:"kind"`
	ConversationID string    `json:"conversationId"`
	Index          int       `json:"index"`             // position of the affected message, -1 for clear
	Message        *Message  `json:"message,omitempty"` // appended or toggled message
	At             time.Time `json:"at"`
}
