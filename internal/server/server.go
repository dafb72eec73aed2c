package server

import (
	"context"
	"log"

	"github.com/crypta-chat/relay/internal/crypto"
	"github.com/crypta-chat/relay/internal/stats"
	"github.com/crypta-chat/relay/internal/validate"
)

// RelayServer owns the connection and room registries and the dispatch
// state machine that routes client frames between them.
type RelayServer struct {
	log        *log.Logger
	crypto     *crypto.Manager
	clients    *ClientRegistry
	rooms      *RoomRegistry
	limiter    *validate.RateLimiter
	stats      stats.StatsProvider
	signingKey []byte
}

func NewRelayServer(logger *log.Logger, cm *crypto.Manager, su stats.StatsProvider, signingKey []byte) (*RelayServer, error) {
	rs := &RelayServer{
		log:        logger,
		crypto:     cm,
		clients:    NewClientRegistry(),
		rooms:      NewRoomRegistry(),
		limiter:    validate.NewRateLimiter(validate.DefaultRateLimit, validate.DefaultRateWindow),
		stats:      su,
		signingKey: signingKey,
	}

	su.RegisterMetric(stats.ActiveConnections)
	su.RegisterMetric(stats.ActiveRooms)
	su.RegisterMetric(stats.MessagesRelayed)
	su.RegisterMetric(stats.FramesDropped)

	return rs, nil
}

// AddClient registers a newly accepted connection.
func (rs *RelayServer) AddClient(c *Client) {
	rs.log.Printf("adding connection %s", c.id)
	rs.clients.Insert(c.id, c)
	rs.stats.Incr(stats.ActiveConnections)
}

// removeClient tears down a connection: membership removal from every room,
// registry removal, rate counter drop.
func (rs *RelayServer) removeClient(c *Client) {
	rs.log.Printf("removing connection %s", c.id)
	rs.rooms.RemoveMemberEverywhere(c.id)
	rs.clients.Remove(c.id)
	rs.limiter.Forget(c.id)
	rs.stats.Decr(stats.ActiveConnections)
}

func (rs *RelayServer) countDroppedFrame() {
	rs.stats.Incr(stats.FramesDropped)
}

// Shutdown disconnects every client and waits for ctx.
func (rs *RelayServer) Shutdown(ctx context.Context) error {
	rs.log.Println("shutting down relay server")
	rs.clients.Each(func(c *Client) {
		c.stopClient()
		if c.conn != nil {
			c.conn.Close()
		}
	})

	return ctx.Err()
}
