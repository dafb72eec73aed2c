package server

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/crypta-chat/relay/internal/stats"
	"github.com/crypta-chat/relay/internal/types"
	"github.com/crypta-chat/relay/internal/validate"
	"github.com/google/uuid"
)

// dispatch routes one parsed frame through the state machine. Every
// rejected request produces an explicit error frame; failures are isolated
// to the requesting connection.
func (rs *RelayServer) dispatch(c *Client, frame *ClientFrame) {
	switch frame.MessageType {
	case TypeRegister:
		rs.handleRegister(c, frame)
	case TypeAuthenticate:
		rs.handleAuthenticate(c, frame)
	case TypeSendMessage:
		if !rs.requireAuthenticated(c) {
			return
		}
		rs.handleSendMessage(c, frame)
	case TypeCreateRoom:
		if !rs.requireAuthenticated(c) {
			return
		}
		rs.handleCreateRoom(c, frame)
	case TypeJoinRoom:
		if !rs.requireAuthenticated(c) {
			return
		}
		rs.handleJoinRoom(c, frame)
	case TypeGetMessages:
		if !rs.requireAuthenticated(c) {
			return
		}
		rs.handleGetMessages(c, frame)
	default:
		rs.log.Printf("unknown message type %q from %s", frame.MessageType, c.id)
		c.queueFrame(errorFrame("unknown message type"))
	}
}

func (rs *RelayServer) requireAuthenticated(c *Client) bool {
	if c.state != StateAuthenticated {
		c.queueFrame(errorFrame("not authenticated"))
		return false
	}

	return true
}

// handleRegister claims an identity: username plus declared Ed25519 public
// key. The reply carries a challenge nonce the client must sign to complete
// authentication.
func (rs *RelayServer) handleRegister(c *Client, frame *ClientFrame) {
	if c.state != StateConnected {
		c.queueFrame(errorFrame("already registered"))
		return
	}

	username := validate.SanitizeContent(frame.Username)
	if username == "" {
		c.queueFrame(errorFrame("username is required"))
		return
	}

	pub, err := base64.StdEncoding.DecodeString(frame.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		c.queueFrame(errorFrame("invalid public key"))
		return
	}

	challenge, err := rs.crypto.NewChallenge()
	if err != nil {
		rs.log.Println("new challenge:", err)
		c.queueFrame(errorFrame("internal server error"))
		return
	}

	c.username = username
	c.publicKey = ed25519.PublicKey(pub)
	c.challenge = challenge
	c.state = StateRegistered

	rs.log.Printf("client %s registered as %q", c.id, username)
	c.queueFrame(registerSuccessFrame(c.id, username, base64.StdEncoding.EncodeToString(challenge)))
}

// handleAuthenticate proves the claimed identity: the content field must
// carry a base64 Ed25519 signature over the challenge issued at
// registration, verifiable with the declared public key.
func (rs *RelayServer) handleAuthenticate(c *Client, frame *ClientFrame) {
	switch c.state {
	case StateConnected:
		c.queueFrame(errorFrame("not registered"))
		return
	case StateAuthenticated:
		c.queueFrame(errorFrame("already authenticated"))
		return
	}

	sig, err := base64.StdEncoding.DecodeString(frame.Content)
	if err != nil {
		c.queueFrame(errorFrame("invalid signature encoding"))
		return
	}

	if !rs.crypto.Verify(c.challenge, sig, c.publicKey) {
		c.queueFrame(errorFrame("signature verification failed"))
		return
	}

	token, err := newSessionToken(c.id, rs.signingKey)
	if err != nil {
		rs.log.Println("new session token:", err)
		c.queueFrame(errorFrame("internal server error"))
		return
	}

	c.challenge = nil
	c.state = StateAuthenticated

	rs.log.Printf("client %s (%s) authenticated", c.id, c.username)
	c.queueFrame(authSuccessFrame(c.id, token))
}

func (rs *RelayServer) handleSendMessage(c *Client, frame *ClientFrame) {
	if !rs.limiter.Allow(c.id) {
		rs.log.Printf("rate limit exceeded for %s", c.id)
		c.queueFrame(errorFrame("rate limit exceeded"))
		return
	}

	if err := validate.ValidateMessage(frame.MessageType, frame.Content, frame.EncryptedContent); err != nil {
		c.queueFrame(errorFrame(err.Error()))
		return
	}

	if err := validate.ValidateSecurity(frame.Content, frame.RoomId); err != nil {
		c.queueFrame(errorFrame(err.Error()))
		return
	}

	if frame.RoomId == "" {
		c.queueFrame(errorFrame("room_id is required"))
		return
	}

	if frame.EncryptedContent == "" {
		c.queueFrame(errorFrame("encrypted_content is required"))
		return
	}

	contentType := frame.ContentType
	if contentType == "" {
		contentType = "text"
	}

	msg := &types.Message{
		Id:               uuid.NewString(),
		SenderId:         c.id,
		SenderName:       c.username,
		RoomId:           frame.RoomId,
		EncryptedContent: frame.EncryptedContent,
		ContentType:      contentType,
		Timestamp:        Now(),
	}

	members, err := rs.rooms.AppendMessage(frame.RoomId, msg)
	if err != nil {
		c.queueFrame(errorFrame(err.Error()))
		return
	}

	// Fan out one frame per current member, sender included.
	for _, memberId := range members {
		if member, ok := rs.clients.Get(memberId); ok {
			member.queueFrame(newMessageFrame(msg))
		}
	}

	rs.stats.Incr(stats.MessagesRelayed)
}

func (rs *RelayServer) handleCreateRoom(c *Client, frame *ClientFrame) {
	roomId := frame.RoomId
	if roomId == "" {
		roomId = uuid.NewString()
	}

	if err := validate.ValidateSecurity("", roomId); err != nil {
		c.queueFrame(errorFrame(err.Error()))
		return
	}

	name := validate.SanitizeContent(frame.RoomName)
	if name == "" {
		name = fmt.Sprintf("Room %s", roomId)
	}

	if _, err := rs.rooms.Create(roomId, name, c.id); err != nil {
		c.queueFrame(errorFrame(err.Error()))
		return
	}

	rs.stats.Incr(stats.ActiveRooms)
	rs.log.Printf("client %s created room %q", c.id, roomId)
	c.queueFrame(roomCreatedFrame(roomId))
}

func (rs *RelayServer) handleJoinRoom(c *Client, frame *ClientFrame) {
	if frame.RoomId == "" {
		c.queueFrame(errorFrame("room_id is required"))
		return
	}

	if _, err := rs.rooms.Join(frame.RoomId, c.id); err != nil {
		c.queueFrame(errorFrame(err.Error()))
		return
	}

	rs.log.Printf("client %s joined room %q", c.id, frame.RoomId)
	c.queueFrame(roomJoinedFrame(frame.RoomId))
}

// handleGetMessages replays the room's log to the requester as individual
// frames, oldest first.
func (rs *RelayServer) handleGetMessages(c *Client, frame *ClientFrame) {
	if frame.RoomId == "" {
		c.queueFrame(errorFrame("room_id is required"))
		return
	}

	msgs, err := rs.rooms.Messages(frame.RoomId, c.id)
	if err != nil {
		c.queueFrame(errorFrame(err.Error()))
		return
	}

	for _, msg := range msgs {
		if !c.queueFrame(messageFrame(msg)) {
			return
		}
	}
}
