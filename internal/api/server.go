package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"

	"github.com/crypta-chat/relay/internal/config"
	"github.com/crypta-chat/relay/internal/server"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
)

// RelayApp is the HTTP surface of the relay: the websocket upgrade endpoint
// and the session-token check, wrapped in CORS and panic recovery.
type RelayApp struct {
	log            *log.Logger
	rs             *server.RelayServer
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewRelayApp(mux *http.ServeMux, logger *log.Logger, rs *server.RelayServer, cfg *config.Config) *RelayApp {
	a := &RelayApp{
		log:            logger,
		rs:             rs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /ws", a.serveWs)
	mux.HandleFunc("GET /api/session", a.session)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = a.recoveryHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	a.mux = srv
	return a
}

func (a *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(a.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, a.rs, a.log)
	a.rs.AddClient(client)

	go client.Write()
	go client.Read()
}

// session validates a bearer session token minted on auth_success and
// returns the identity it is bound to.
func (a *RelayApp) session(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok || tokenString == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	userId, err := server.VerifySessionToken(tokenString, a.signingKey)
	if err != nil {
		a.log.Println("session token rejected:", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\"user_id\":%q}\n", userId)
}

func (a *RelayApp) recoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				a.log.Printf("panic: %v", err)
				w.Header().Set("Connection", "close")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (a *RelayApp) Start() error {
	a.log.Printf("starting server on %s\n", a.mux.Addr)
	return a.mux.ListenAndServe()
}

func (a *RelayApp) Shutdown(ctx context.Context) error {
	a.log.Println("shutting down HTTP server...")
	if err := a.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
