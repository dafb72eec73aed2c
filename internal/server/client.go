package server

import (
	"crypto/ed25519"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	// maxFrameSize fits the 50KB encrypted-content cap plus JSON framing.
	maxFrameSize  = 64 * 1024
	sendQueueSize = 256
)

type clientState int

const (
	StateConnected clientState = iota
	StateRegistered
	StateAuthenticated
)

// Client is one live connection: a stable identity generated on accept, the
// registration state, and the outbound frame queue. The state fields
// (state, username, publicKey, challenge) are owned by the Read pump and
// mutated only from dispatch.
type Client struct {
	id        string
	username  string
	publicKey ed25519.PublicKey
	challenge []byte
	state     clientState

	conn   *websocket.Conn
	server *RelayServer
	log    *log.Logger
	send   chan *ServerFrame
	stop   chan struct{}

	stopOnce    sync.Once
	cleanupOnce sync.Once
}

func NewClient(conn *websocket.Conn, rs *RelayServer, l *log.Logger) *Client {
	return &Client{
		id:     uuid.NewString(),
		state:  StateConnected,
		conn:   conn,
		server: rs,
		log:    l,
		send:   make(chan *ServerFrame, sendQueueSize),
		stop:   make(chan struct{}),
	}
}

// Id returns the connection's stable identity.
func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeFrame(frame)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Println("error parsing frame:", err)
			c.queueFrame(errorFrame("invalid message format"))
			continue
		}

		c.server.dispatch(c, &frame)

		select {
		case <-c.stop:
			return
		default:
		}
	}
}

// queueFrame enqueues an outbound frame. A full queue means the consumer is
// too slow to keep its backlog bounded; the client is disconnected rather
// than letting the queue grow.
func (c *Client) queueFrame(frame *ServerFrame) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Printf("send queue full for client %s, disconnecting", c.id)
		c.server.countDroppedFrame()
		c.stopClient()
		return false
	}
}

func serializeFrame(frame *ServerFrame) ([]byte, error) {
	return json.Marshal(frame)
}

func (c *Client) writeFrame(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup tears the connection down exactly once: membership removal from
// every room, registry removal, rate counter drop.
func (c *Client) cleanup() {
	c.cleanupOnce.Do(func() {
		c.server.removeClient(c)
		c.stopClient()
	})
}
