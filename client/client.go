package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"example.com/roulette/pkg/signaling"
)

const (
	writeWait   = 10 * time.Second
	welcomeWait = 10 * time.Second
)

// Config configures a roulette client.
type Config struct {
	ServerURL  string
	Name       string
	ICEServers []string
	Logger     *slog.Logger

	// Format of PCM passed to SendPCM. Defaults to 48kHz stereo.
	SampleRate int
	Channels   int
}

// CallInfo describes a new pairing.
type CallInfo struct {
	PeerID   string
	PeerName string
	Role     signaling.Role
	Room     string
}

// callSession is the part of Session the client uses.
type callSession interface {
	Start()
	HandleSignal(kind signaling.SignalKind, payload json.RawMessage)
	SendChat(text string) error
	SendPCM(pcm []int16) error
	Close()
}

// Client connects to the matchmaking server and runs at most one call at a
// time. Callbacks must be registered before Connect and are invoked from
// the client's read goroutine.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	started bool
	id      string
	peer    *CallInfo
	session callSession

	newSession func(SessionConfig) (callSession, error)

	onWaiting     func()
	onCallStarted func(CallInfo)
	onPeerGone    func(reason string)
	onChat        func(ChatMessage)
	onStatus      func(TransportStatus)
	onWarning     func(error)
	onError       func(error)
	onTrack       func(*webrtc.TrackRemote)

	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
}

func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		newSession: func(sc SessionConfig) (callSession, error) {
			return NewSession(sc)
		},
		done: make(chan struct{}),
	}
}

// OnWaiting sets the callback for entering the waiting pool.
func (c *Client) OnWaiting(fn func()) { c.onWaiting = fn }

// OnCallStarted sets the callback for a new pairing.
func (c *Client) OnCallStarted(fn func(CallInfo)) { c.onCallStarted = fn }

// OnPeerGone sets the callback for the partner leaving. reason is
// "hang-up", "next" or "disconnected".
func (c *Client) OnPeerGone(fn func(reason string)) { c.onPeerGone = fn }

func (c *Client) OnChat(fn func(ChatMessage)) { c.onChat = fn }

func (c *Client) OnStatus(fn func(TransportStatus)) { c.onStatus = fn }

func (c *Client) OnWarning(fn func(error)) { c.onWarning = fn }

// OnError sets the callback for server errors and loss of the signaling
// connection.
func (c *Client) OnError(fn func(error)) { c.onError = fn }

// OnTrack sets the callback for the partner's audio track. See ReadTrack.
func (c *Client) OnTrack(fn func(*webrtc.TrackRemote)) { c.onTrack = fn }

// Connect dials the server, waits for the welcome carrying this client's
// identifier and announces the display name.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(welcomeWait))
	var msg signaling.Message
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return fmt.Errorf("waiting for welcome: %w", err)
	}
	var welcome signaling.WelcomePayload
	if msg.Type != signaling.TypeWelcome {
		conn.Close()
		return fmt.Errorf("expected %s, got %s", signaling.TypeWelcome, msg.Type)
	}
	if err := msg.Decode(&welcome); err != nil {
		conn.Close()
		return fmt.Errorf("decode welcome: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.id = welcome.ID
	c.mu.Unlock()
	c.logger = c.logger.With("client", welcome.ID)

	if err := c.send(signaling.TypeSetIdentity, signaling.SetIdentityPayload{Name: c.cfg.Name}); err != nil {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.readLoop()
	c.logger.Info("connected", "server", c.cfg.ServerURL, "name", c.cfg.Name)
	return nil
}

// ID returns the identifier assigned by the server.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Peer returns the current partner, if any.
func (c *Client) Peer() (CallInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == nil {
		return CallInfo{}, false
	}
	return *c.peer, true
}

// FindPeer asks to be paired with a random stranger.
func (c *Client) FindPeer() error {
	return c.send(signaling.TypeFindPeer, nil)
}

// Next leaves the current call, if any, and looks for someone new. The
// server ends the old pairing and requeues in one step.
func (c *Client) Next() error {
	c.endCall()
	return c.send(signaling.TypeFindPeer, nil)
}

// HangUp leaves the current call or the waiting pool.
func (c *Client) HangUp() error {
	c.endCall()
	return c.send(signaling.TypeHangUp, nil)
}

// SendChat sends text to the partner, over the data channel when it is
// open and through the server otherwise. The caller displays its own
// message.
func (c *Client) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	session, paired := c.session, c.peer != nil
	c.mu.Unlock()
	if !paired {
		return opError("send chat", ErrNoSession)
	}

	if session != nil {
		err := session.SendChat(text)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrChatUnavailable) {
			c.logger.Debug("data channel chat failed, using server", "error", err)
		}
	}
	return c.send(signaling.TypeChatMessage, signaling.ChatRequest{Text: text})
}

// SendPCM sends interleaved PCM in the configured format to the partner.
func (c *Client) SendPCM(pcm []int16) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return opError("send audio", ErrNoSession)
	}
	return session.SendPCM(pcm)
}

// Disconnect ends any call and closes the signaling connection.
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.endCall()

		c.mu.Lock()
		conn, started := c.conn, c.started
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			conn.Close()
		}
		if !started {
			close(c.done)
			return
		}
		<-c.done
		c.logger.Info("disconnected")
	})
	return nil
}

// Done is closed once the signaling connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) send(msgType string, payload any) error {
	msg, err := signaling.NewMessage(msgType, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return opError(msgType, ErrNotConnected)
	}

	frame, err := signaling.Encode(msg)
	if err != nil {
		return opError(msgType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return opError(msgType, err)
	}
	return nil
}

func (c *Client) readLoop() {
	conn := c.conn
	defer func() {
		c.endCall()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		close(c.done)
	}()

	for {
		var msg signaling.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !c.closing.Load() {
				c.logger.Warn("signaling connection lost", "error", err)
				c.fail(opError("read", err))
			}
			return
		}
		c.handle(&msg)
	}
}

func (c *Client) handle(msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypeIdentitySet:
		var p signaling.IdentitySetPayload
		if err := msg.Decode(&p); err == nil {
			c.logger.Debug("identity set", "name", p.Name)
		}

	case signaling.TypeWaiting:
		if c.onWaiting != nil {
			c.onWaiting()
		}

	case signaling.TypeCallStarted:
		var p signaling.CallStartedPayload
		if err := msg.Decode(&p); err != nil {
			c.warn(opError("call started", err))
			return
		}
		c.startCall(CallInfo{PeerID: p.PeerID, PeerName: p.PeerName, Role: p.Role, Room: p.Room})

	case signaling.TypeSignal:
		var p signaling.SignalRelay
		if err := msg.Decode(&p); err != nil {
			c.warn(opError("signal", err))
			return
		}
		c.mu.Lock()
		session := c.session
		current := c.peer != nil && c.peer.PeerID == p.From
		c.mu.Unlock()
		if !current || session == nil {
			c.logger.Debug("dropping signal from stale peer", "from", p.From, "type", p.Type)
			return
		}
		session.HandleSignal(p.Type, p.Payload)

	case signaling.TypeChatMessage:
		var p signaling.ChatRelay
		if err := msg.Decode(&p); err != nil {
			c.warn(opError("chat", err))
			return
		}
		if p.SenderID == c.ID() {
			return
		}
		if c.onChat != nil {
			c.onChat(ChatMessage{From: p.Sender, Text: p.Text, ViaServer: true})
		}

	case signaling.TypePeerGone:
		var p signaling.PeerGonePayload
		if len(msg.Payload) > 0 {
			msg.Decode(&p)
		}
		c.endCall()
		c.logger.Info("peer gone", "reason", p.Reason)
		if c.onPeerGone != nil {
			c.onPeerGone(p.Reason)
		}

	case signaling.TypeError:
		var p signaling.ErrorPayload
		msg.Decode(&p)
		c.fail(opError("server", errors.New(p.Message)))

	default:
		c.logger.Debug("unknown event", "type", msg.Type)
	}
}

// startCall closes the previous session completely before creating the
// session for info.
func (c *Client) startCall(info CallInfo) {
	c.endCall()

	session, err := c.newSession(SessionConfig{
		Role:       info.Role,
		ICEServers: c.cfg.ICEServers,
		Signals:    peerSignals{client: c, to: info.PeerID},
		Logger:     c.logger.With("peer", info.PeerID),
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
		OnStatus:   c.onStatus,
		OnWarning:  c.onWarning,
		OnChat: func(f ChatFrame) {
			if c.onChat != nil {
				c.onChat(ChatMessage{From: info.PeerName, Text: f.Text})
			}
		},
		OnTrack: c.onTrack,
	})

	c.mu.Lock()
	c.peer = &info
	if err == nil {
		c.session = session
	}
	c.mu.Unlock()

	c.logger.Info("call started", "peer", info.PeerID, "peer_name", info.PeerName, "role", info.Role, "room", info.Room)
	if err != nil {
		// Chat still works through the server without a peer connection.
		c.warn(opError("create session", err))
	} else {
		session.Start()
	}
	if c.onCallStarted != nil {
		c.onCallStarted(info)
	}
}

func (c *Client) endCall() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.peer = nil
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

func (c *Client) warn(err error) {
	c.logger.Warn("client", "error", err)
	if c.onWarning != nil {
		c.onWarning(err)
	}
}

func (c *Client) fail(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

// peerSignals addresses negotiation messages to one partner.
type peerSignals struct {
	client *Client
	to     string
}

func (p peerSignals) SendSignal(kind signaling.SignalKind, payload json.RawMessage) error {
	return p.client.send(signaling.TypeSignal, signaling.SignalRequest{
		To:      p.to,
		Type:    kind,
		Payload: payload,
	})
}
