// Package ws serves the viewer wire protocol over websockets: JSON text
// frames for control and display traffic, binary frames for audio.
package ws

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/observability/logging"
	"live-slide-sync-service/internal/service/session"
)

// Server accepts viewer connections and bridges them to the session hub.
type Server struct {
	hub      *session.Hub
	server   *http.Server
	addr     string
	upgrader websocket.Upgrader
}

// NewServer creates the websocket server on the given address.
func NewServer(addr string, hub *session.Hub) *Server {
	s := &Server{
		hub:  hub,
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Viewers connect from projector machines and operator
			// consoles on other origins; the protocol itself carries no
			// credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleViewer)

	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting viewer websocket server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Viewer websocket server error")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down viewer websocket server")
	return s.server.Shutdown(ctx)
}

// handleViewer upgrades the connection and runs its read loop. The role
// comes from the query string; session membership comes later via a
// START_SESSION message, so a reconnecting viewer resynchronizes with a
// fresh full-state frame.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	role := models.ViewerRole(r.URL.Query().Get("role"))
	if !role.Valid() {
		http.Error(w, "role must be operator or projector", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := logging.WithComponent("ws")
		logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := newConn(xid.New().String(), role, ws, s.hub)
	go c.writeLoop()
	c.readLoop()
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
