package types

import (
	"time"
)

// Message is an immutable record of a relayed payload. Sender identity and
// name are captured at send time and never re-resolved.
type Message struct {
	Id               string    `json:"id"`
	SenderId         string    `json:"sender_id"`
	SenderName       string    `json:"sender_name"`
	RoomId           string    `json:"room_id"`
	EncryptedContent string    `json:"encrypted_content"`
	ContentType      string    `json:"content_type"`
	Timestamp        time.Time `json:"timestamp"`
}

// RoomInfo is a point-in-time snapshot of a room's metadata and membership.
type RoomInfo struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}
