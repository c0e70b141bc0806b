package domain

import "time"

// StreamID doubles as the room id: one chat room per live stream.
type StreamID string

// ChatMessage is relay-only. SentAt is stamped by the server when the
// message enters the room, never by the client.
type ChatMessage struct {
	Stream StreamID  `json:"streamId"`
	From   SessionID `json:"from"`
	Text   string    `json:"message"`
	SentAt time.Time `json:"sentAt"`
}
