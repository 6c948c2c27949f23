// Package chat defines the chat message shapes carried over the realtime
// channel and the sender-side echo suppression used by playback clients.
package chat

import (
	"fmt"
	"time"
)

// Message is one chat message in a stream's room. System messages
// (join/leave notices) have System set and carry no sender identity.
type Message struct {
	SenderID   string `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	Text       string `json:"text"`
	SentAt     int64  `json:"sent_at"` // unix milliseconds
	System     bool   `json:"system,omitempty"`
}

// NewMessage builds a user chat message stamped with the current time.
func NewMessage(senderID, senderName, text string) Message {
	return Message{
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		SentAt:     time.Now().UnixMilli(),
	}
}

// SystemMessage builds a join/leave style notice. System messages are never
// subject to echo suppression.
func SystemMessage(text string) Message {
	return Message{Text: text, SentAt: time.Now().UnixMilli(), System: true}
}

// Fingerprint identifies a concrete send: same sender, same timestamp, same
// text. Used to recognize the server's broadcast echo of one's own message.
func (m Message) Fingerprint() string {
	return fmt.Sprintf("%s|%d|%s", m.SenderID, m.SentAt, m.Text)
}
