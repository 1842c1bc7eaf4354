package client

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"example.com/roulette/pkg/audio"
	"example.com/roulette/pkg/signaling"
)

var errMissingSDP = errors.New("session description without sdp")

// SignalSender delivers negotiation messages to the current peer.
type SignalSender interface {
	SendSignal(kind signaling.SignalKind, payload json.RawMessage) error
}

// SessionConfig configures one call.
type SessionConfig struct {
	Role       signaling.Role
	ICEServers []string
	Signals    SignalSender
	Logger     *slog.Logger

	// Format of PCM passed to SendPCM. Defaults to 48kHz stereo.
	SampleRate int
	Channels   int

	OnStatus  func(TransportStatus)
	OnWarning func(error)
	OnChat    func(ChatFrame)
	OnTrack   func(*webrtc.TrackRemote)
}

// Session binds a Negotiation to a peer transport and carries out its
// effects. All negotiation steps and transport calls happen under mu.
type Session struct {
	cfg       SessionConfig
	logger    *slog.Logger
	transport transport

	mu     sync.Mutex
	neg    Negotiation
	closed bool

	audioMu    sync.Mutex
	pipeline   *audio.Pipeline
	packetizer *audio.Packetizer
}

// NewSession creates the peer connection for one call. Call Start once
// the session is stored where incoming signals can reach it.
func NewSession(cfg SessionConfig) (*Session, error) {
	s := newSession(cfg)
	t, err := newPeerTransport(cfg.ICEServers, cfg.Role == signaling.RoleInitiator, s.events(), s.logger)
	if err != nil {
		return nil, err
	}
	s.transport = t
	return s, nil
}

func newSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.SampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = audio.Channels
	}
	return &Session{
		cfg:    cfg,
		logger: cfg.Logger.With("role", cfg.Role),
		neg:    NewNegotiation(cfg.Role),
	}
}

func (s *Session) events() transportEvents {
	return transportEvents{
		onCandidate: s.sendCandidate,
		onStatus: func(status TransportStatus) {
			s.dispatch(TransportChanged{Status: status})
		},
		onData:  s.receiveChat,
		onTrack: s.cfg.OnTrack,
	}
}

// Start begins negotiation. The initiator creates and sends its offer;
// the responder waits for one.
func (s *Session) Start() {
	s.dispatch(Start{})
}

// HandleSignal applies a negotiation message relayed from the peer.
func (s *Session) HandleSignal(kind signaling.SignalKind, payload json.RawMessage) {
	switch kind {
	case signaling.SignalOffer, signaling.SignalAnswer:
		var desc struct {
			SDP string `json:"sdp"`
		}
		if err := json.Unmarshal(payload, &desc); err != nil {
			s.warn(opError("decode "+string(kind), err))
			return
		}
		if desc.SDP == "" {
			s.warn(opError("decode "+string(kind), errMissingSDP))
			return
		}
		if kind == signaling.SignalOffer {
			s.dispatch(RemoteOffer{SDP: desc.SDP})
		} else {
			s.dispatch(RemoteAnswer{SDP: desc.SDP})
		}
	case signaling.SignalCandidate:
		s.dispatch(RemoteCandidate{Candidate: payload})
	}
}

// State returns the negotiation phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neg.State
}

// Close ends the call and releases the peer connection. Safe to call
// more than once.
func (s *Session) Close() {
	s.dispatch(Close{})
}

// SendChat sends text over the data channel.
func (s *Session) SendChat(text string) error {
	if s.isClosed() {
		return ErrNoSession
	}
	b, err := encodeChat(ChatFrame{Text: text, SentAt: time.Now()})
	if err != nil {
		return err
	}
	return s.transport.SendData(b)
}

// SendPCM encodes interleaved PCM in the configured format and writes it
// to the outgoing audio track.
func (s *Session) SendPCM(pcm []int16) error {
	if s.isClosed() {
		return ErrNoSession
	}

	s.audioMu.Lock()
	defer s.audioMu.Unlock()

	if s.pipeline == nil {
		p, err := audio.NewPipeline(s.cfg.SampleRate, s.cfg.Channels)
		if err != nil {
			return opError("send audio", err)
		}
		s.pipeline = p
		s.packetizer = audio.NewPacketizer(rand.Uint32(), audio.PayloadType, audio.FrameSamples)
	}

	frames, err := s.pipeline.Process(pcm)
	for _, frame := range frames {
		if werr := s.transport.WriteAudio(s.packetizer.Packetize(frame)); werr != nil {
			return opError("send audio", werr)
		}
	}
	if err != nil {
		return opError("send audio", err)
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// dispatch steps the negotiation and performs the resulting effects.
// Callbacks and transport release run after mu is dropped.
func (s *Session) dispatch(ev Event) {
	s.mu.Lock()
	notify, closeTransport := s.step(ev)
	s.mu.Unlock()

	if closeTransport {
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("close peer connection", "error", err)
		}
	}
	for _, fn := range notify {
		fn()
	}
}

func (s *Session) step(first Event) (notify []func(), closeTransport bool) {
	queue := []Event{first}
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		var effects []Effect
		s.neg, effects = s.neg.Step(ev)

		for _, eff := range effects {
			switch e := eff.(type) {
			case CreateOffer:
				sdp, err := s.transport.CreateOffer()
				if err != nil {
					notify = append(notify, s.warnFn(opError("create offer", err)))
					continue
				}
				queue = append(queue, OfferCreated{SDP: sdp})

			case CreateAnswer:
				sdp, err := s.transport.CreateAnswer()
				if err != nil {
					notify = append(notify, s.warnFn(opError("create answer", err)))
					continue
				}
				queue = append(queue, AnswerCreated{SDP: sdp})

			case SetLocalDescription:
				if err := s.transport.SetLocalDescription(e.Kind, e.SDP); err != nil {
					notify = append(notify, s.warnFn(opError("set local "+string(e.Kind), err)))
				}

			case SetRemoteDescription:
				if err := s.transport.SetRemoteDescription(e.Kind, e.SDP); err != nil {
					notify = append(notify, s.warnFn(opError("set remote "+string(e.Kind), err)))
				}

			case AddCandidates:
				for _, c := range e.Candidates {
					if err := s.transport.AddCandidate(c); err != nil {
						notify = append(notify, s.warnFn(opError("add candidate", err)))
					}
				}

			case SendSignal:
				payload, err := json.Marshal(description(e.Kind, e.SDP))
				if err != nil {
					notify = append(notify, s.warnFn(opError("encode "+string(e.Kind), err)))
					continue
				}
				if err := s.cfg.Signals.SendSignal(e.Kind, payload); err != nil {
					notify = append(notify, s.warnFn(opError("send "+string(e.Kind), err)))
				}

			case ReportStatus:
				if s.cfg.OnStatus != nil {
					status := e.Status
					notify = append(notify, func() { s.cfg.OnStatus(status) })
				}

			case Warn:
				notify = append(notify, s.warnFn(e.Err))

			case CloseTransport:
				s.closed = true
				closeTransport = true
			}
		}
	}
	return notify, closeTransport
}

func (s *Session) sendCandidate(c json.RawMessage) {
	if s.isClosed() {
		return
	}
	if err := s.cfg.Signals.SendSignal(signaling.SignalCandidate, c); err != nil {
		s.warn(opError("send candidate", err))
	}
}

func (s *Session) receiveChat(b []byte) {
	frame, err := decodeChat(b)
	if err != nil {
		s.warn(opError("receive chat", err))
		return
	}
	if strings.TrimSpace(frame.Text) == "" {
		return
	}
	if s.cfg.OnChat != nil {
		s.cfg.OnChat(frame)
	}
}

func (s *Session) warn(err error) {
	s.warnFn(err)()
}

func (s *Session) warnFn(err error) func() {
	return func() {
		s.logger.Warn("negotiation", "error", err)
		if s.cfg.OnWarning != nil {
			s.cfg.OnWarning(err)
		}
	}
}
