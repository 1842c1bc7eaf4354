package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"example.com/roulette/pkg/matchmaker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newMux(hub *matchmaker.Hub, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", serveWs(hub, logger))
	mux.HandleFunc("/health", serveHealth(hub))
	return mux
}

// serveWs upgrades the request, registers the connection with the hub and
// starts its pumps.
func serveWs(hub *matchmaker.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		c := newConn(hub, ws, logger)
		id, err := hub.Register(r.Context(), c)
		if err != nil {
			logger.Warn("register failed", "remote", r.RemoteAddr, "error", err)
			ws.Close()
			return
		}
		c.id = id
		logger.Info("participant connected", "participant", id, "remote", r.RemoteAddr)

		go c.writePump()
		go c.readPump()
	}
}

type healthResponse struct {
	Status string `json:"status"`
	matchmaker.Stats
}

func serveHealth(hub *matchmaker.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		stats, err := hub.Stats(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(healthResponse{Status: "unavailable"})
			return
		}
		json.NewEncoder(w).Encode(healthResponse{Status: "ok", Stats: stats})
	}
}
