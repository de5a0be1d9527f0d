package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers embed the board from anywhere
	},
}

// handleWebSocket upgrades the connection and hands it to the hub for the
// rest of its life. The hub sends the greeting payload on registration; the
// read pump below only detects the client going away.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	if err := s.hub.Register(conn); err != nil {
		slog.Warn("Failed to register connection with hub", "error", err)
		return nil
	}

	// Read pump — blocks until the connection closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Unregister(conn)

	return nil
}
