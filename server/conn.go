package main

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"example.com/roulette/pkg/matchmaker"
	"example.com/roulette/pkg/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP fits comfortably.
	maxMessageSize = 64 * 1024

	// Outbound frames queued per connection before it is dropped.
	sendQueueSize = 256
)

// Conn is one participant's WebSocket. It implements matchmaker.Channel.
type Conn struct {
	hub    *matchmaker.Hub
	ws     *websocket.Conn
	logger *slog.Logger

	id matchmaker.ParticipantID

	// send is drained by writePump. It is never closed; closed signals
	// shutdown instead so concurrent senders cannot panic.
	send   chan *signaling.Message
	closed chan struct{}
	once   sync.Once
	live   atomic.Bool
}

var _ matchmaker.Channel = (*Conn)(nil)

func newConn(hub *matchmaker.Hub, ws *websocket.Conn, logger *slog.Logger) *Conn {
	c := &Conn{
		hub:    hub,
		ws:     ws,
		logger: logger,
		send:   make(chan *signaling.Message, sendQueueSize),
		closed: make(chan struct{}),
	}
	c.live.Store(true)
	return c
}

// Send queues msg without blocking. A connection whose queue is full is
// too slow to keep up and gets closed.
func (c *Conn) Send(msg *signaling.Message) bool {
	if !c.live.Load() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send queue full, dropping connection")
		c.Close()
		return false
	}
}

func (c *Conn) Live() bool {
	return c.live.Load()
}

// Close stops the pumps. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		c.live.Store(false)
		close(c.closed)
	})
}

// readPump pumps frames from the websocket connection to the hub.
//
// It runs in its own goroutine and is the only reader of the connection.
func (c *Conn) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.Close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("connection lost", "participant", c.id, "error", err)
			}
			return
		}

		var msg signaling.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.logger.Debug("unreadable frame", "participant", c.id, "error", err)
			c.Send(signaling.MustMessage(signaling.TypeError, signaling.ErrorPayload{
				Message: "malformed event: expected a JSON object with a type",
			}))
			continue
		}
		c.hub.Dispatch(c.id, &msg)
	}
}

// writePump pumps queued frames to the websocket connection and keeps it
// alive with pings. It is the only writer of the connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			frame, err := signaling.Encode(msg)
			if err != nil {
				c.logger.Error("encode failed", "type", msg.Type, "error", err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", "participant", c.id, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.closed:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
