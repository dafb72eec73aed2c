package api

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/crypta-chat/relay/internal/config"
	"github.com/crypta-chat/relay/internal/crypto"
	"github.com/crypta-chat/relay/internal/server"
	"github.com/crypta-chat/relay/internal/stats"
	"github.com/crypta-chat/relay/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewRelayApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	rs := &server.RelayServer{}
	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		SigningKey:     []byte("secret"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	app := NewRelayApp(mux, logger, rs, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected mux to be initialized")
	assert.Equal(t, app.log, logger, "expected logger to be set")
	assert.Equal(t, app.rs, rs, "expected relay server to be set")
	assert.Equal(t, app.signingKey, cfg.SigningKey, "expected signing key to be set")
	assert.Equal(t, app.allowedOrigins, cfg.AllowedOrigins, "expected allowed origins to be set")
	assert.Equal(t, app.mux.Addr, cfg.ServerAddr, "expected server address to match config")
}

// newTestApp wires a full relay behind an httptest server.
func newTestApp(t *testing.T, su stats.StatsProvider) (*RelayApp, *httptest.Server) {
	t.Helper()

	logger := testutil.TestLogger(t)
	cm, err := crypto.NewManager()
	require.NoError(t, err)

	rs, err := server.NewRelayServer(logger, cm, su, []byte("test-signing-key"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	cfg := &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: []byte("test-signing-key"),
	}
	app := NewRelayApp(mux, logger, rs, cfg)

	ts := httptest.NewServer(app.mux.Handler)
	t.Cleanup(ts.Close)

	return app, ts
}

func dialWs(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "expected websocket dial to succeed")
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) server.ServerFrame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame server.ServerFrame
	require.NoError(t, conn.ReadJSON(&frame), "expected a frame from the server")
	return frame
}

func registerAndAuthenticate(t *testing.T, conn *websocket.Conn, username string) string {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(server.ClientFrame{
		MessageType: server.TypeRegister,
		Username:    username,
		PublicKey:   base64.StdEncoding.EncodeToString(pub),
	}))

	frame := readFrame(t, conn)
	require.Equal(t, server.TypeRegisterSuccess, frame.MessageType, "register failed: %s", frame.Error)
	require.NotEmpty(t, frame.UserId)

	challenge, err := base64.StdEncoding.DecodeString(frame.Content)
	require.NoError(t, err)

	sig := ed25519.Sign(priv, challenge)
	require.NoError(t, conn.WriteJSON(server.ClientFrame{
		MessageType: server.TypeAuthenticate,
		Content:     base64.StdEncoding.EncodeToString(sig),
	}))

	frame = readFrame(t, conn)
	require.Equal(t, server.TypeAuthSuccess, frame.MessageType, "authenticate failed: %s", frame.Error)
	require.NotEmpty(t, frame.Content, "expected a session token")
	return frame.Content
}

// Full end-to-end scenario over a live websocket: register alice, create
// r1, register bob, join r1, alice sends payload X, both connections
// receive a new_message frame carrying X.
func TestWebSocketEndToEnd(t *testing.T) {
	// The real updater is instantiated at most once per test binary since
	// its metrics live in the process-wide expvar namespace.
	su := stats.NewStatsUpdater(http.NewServeMux())
	su.Run()

	_, ts := newTestApp(t, su)

	alice := dialWs(t, ts)
	token := registerAndAuthenticate(t, alice, "alice")

	require.NoError(t, alice.WriteJSON(server.ClientFrame{
		MessageType: server.TypeCreateRoom,
		RoomId:      "r1",
		RoomName:    "Room One",
	}))
	frame := readFrame(t, alice)
	require.Equal(t, server.TypeRoomCreated, frame.MessageType, "create_room failed: %s", frame.Error)
	require.Equal(t, "r1", frame.RoomId)

	bob := dialWs(t, ts)
	registerAndAuthenticate(t, bob, "bob")

	require.NoError(t, bob.WriteJSON(server.ClientFrame{
		MessageType: server.TypeJoinRoom,
		RoomId:      "r1",
	}))
	frame = readFrame(t, bob)
	require.Equal(t, server.TypeRoomJoined, frame.MessageType, "join_room failed: %s", frame.Error)

	require.NoError(t, alice.WriteJSON(server.ClientFrame{
		MessageType:      server.TypeSendMessage,
		RoomId:           "r1",
		EncryptedContent: "X",
	}))

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		frame := readFrame(t, conn)
		assert.Equal(t, server.TypeNewMessage, frame.MessageType, "expected new_message for %s", name)
		assert.Equal(t, "X", frame.EncryptedContent, "expected the opaque payload for %s", name)
		assert.Equal(t, "r1", frame.RoomId)
		assert.Equal(t, "alice", frame.Username)
	}

	// The minted session token is accepted by the session endpoint.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/session", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "expected the session token to be accepted")

	// Replay: bob reads the room history.
	require.NoError(t, bob.WriteJSON(server.ClientFrame{
		MessageType: server.TypeGetMessages,
		RoomId:      "r1",
	}))
	frame = readFrame(t, bob)
	assert.Equal(t, server.TypeMessage, frame.MessageType)
	assert.Equal(t, "X", frame.EncryptedContent)
}

func TestWebSocketUnauthenticatedRejected(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	_, ts := newTestApp(t, su)
	conn := dialWs(t, ts)

	require.NoError(t, conn.WriteJSON(server.ClientFrame{
		MessageType: server.TypeSendMessage,
		RoomId:      "r1",
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, server.TypeError, frame.MessageType)
	assert.Equal(t, "not authenticated", frame.Error)
}

func TestWebSocketMalformedFrame(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	_, ts := newTestApp(t, su)
	conn := dialWs(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	frame := readFrame(t, conn)
	assert.Equal(t, server.TypeError, frame.MessageType)
	assert.Equal(t, "invalid message format", frame.Error)
}

func TestServeWsOriginCheck(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	cm, err := crypto.NewManager()
	require.NoError(t, err)
	rs, err := server.NewRelayServer(logger, cm, su, []byte("key"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	cfg := &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     []byte("key"),
		AllowedOrigins: []string{"http://allowed.example.com"},
	}
	app := NewRelayApp(mux, logger, rs, cfg)

	ts := httptest.NewServer(app.mux.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	// A disallowed origin is refused at upgrade time.
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	assert.Error(t, err, "expected dial with disallowed origin to fail")
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	// An allowed origin upgrades.
	header = http.Header{"Origin": []string{"http://allowed.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err, "expected dial with allowed origin to succeed")
	conn.Close()
}

func TestSessionEndpointUnauthorized(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	_, ts := newTestApp(t, su)

	t.Run("missing header", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/session")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/session", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer garbage")

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
