package server

import (
	"time"

	"github.com/crypta-chat/relay/internal/types"
)

// Client request tags.
const (
	TypeRegister     = "register"
	TypeAuthenticate = "authenticate"
	TypeSendMessage  = "send_message"
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeGetMessages  = "get_messages"
)

// Server response tags.
const (
	TypeRegisterSuccess = "register_success"
	TypeAuthSuccess     = "auth_success"
	TypeRoomCreated     = "room_created"
	TypeRoomJoined      = "room_joined"
	TypeNewMessage      = "new_message"
	TypeMessage         = "message"
	TypeError           = "error"
)

// ClientFrame is one parsed request from a client. Timestamp is ignored;
// the server always stamps its own time on stored messages.
type ClientFrame struct {
	MessageType      string     `json:"message_type"`
	Username         string     `json:"username,omitempty"`
	RoomId           string     `json:"room_id,omitempty"`
	RoomName         string     `json:"room_name,omitempty"`
	Content          string     `json:"content,omitempty"`
	EncryptedContent string     `json:"encrypted_content,omitempty"`
	PublicKey        string     `json:"public_key,omitempty"`
	ContentType      string     `json:"content_type,omitempty"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
}

// ServerFrame is one outbound frame to a client.
type ServerFrame struct {
	MessageType      string    `json:"message_type"`
	UserId           string    `json:"user_id,omitempty"`
	Username         string    `json:"username,omitempty"`
	RoomId           string    `json:"room_id,omitempty"`
	Content          string    `json:"content,omitempty"`
	EncryptedContent string    `json:"encrypted_content,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Error            string    `json:"error,omitempty"`
}

func errorFrame(reason string) *ServerFrame {
	return &ServerFrame{
		MessageType: TypeError,
		Timestamp:   Now(),
		Error:       reason,
	}
}

func registerSuccessFrame(userId, username, challenge string) *ServerFrame {
	return &ServerFrame{
		MessageType: TypeRegisterSuccess,
		UserId:      userId,
		Username:    username,
		Content:     challenge,
		Timestamp:   Now(),
	}
}

func authSuccessFrame(userId, token string) *ServerFrame {
	return &ServerFrame{
		MessageType: TypeAuthSuccess,
		UserId:      userId,
		Content:     token,
		Timestamp:   Now(),
	}
}

func roomCreatedFrame(roomId string) *ServerFrame {
	return &ServerFrame{
		MessageType: TypeRoomCreated,
		RoomId:      roomId,
		Content:     "room created successfully",
		Timestamp:   Now(),
	}
}

func roomJoinedFrame(roomId string) *ServerFrame {
	return &ServerFrame{
		MessageType: TypeRoomJoined,
		RoomId:      roomId,
		Content:     "joined room successfully",
		Timestamp:   Now(),
	}
}

func newMessageFrame(msg *types.Message) *ServerFrame {
	return &ServerFrame{
		MessageType:      TypeNewMessage,
		UserId:           msg.SenderId,
		Username:         msg.SenderName,
		RoomId:           msg.RoomId,
		EncryptedContent: msg.EncryptedContent,
		Timestamp:        msg.Timestamp,
	}
}

func messageFrame(msg *types.Message) *ServerFrame {
	return &ServerFrame{
		MessageType:      TypeMessage,
		UserId:           msg.SenderId,
		Username:         msg.SenderName,
		RoomId:           msg.RoomId,
		EncryptedContent: msg.EncryptedContent,
		Timestamp:        msg.Timestamp,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
