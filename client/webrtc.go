package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"example.com/roulette/pkg/audio"
	"example.com/roulette/pkg/signaling"
)

// transport is the peer connection as the session drives it.
type transport interface {
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetLocalDescription(kind signaling.SignalKind, sdp string) error
	SetRemoteDescription(kind signaling.SignalKind, sdp string) error
	AddCandidate(candidate json.RawMessage) error

	SendData(b []byte) error
	WriteAudio(pkt *audio.Packet) error

	Close() error
}

// transportEvents are raised by the transport from its own goroutines.
type transportEvents struct {
	onCandidate func(candidate json.RawMessage)
	onStatus    func(status TransportStatus)
	onData      func(b []byte)
	onTrack     func(track *webrtc.TrackRemote)
}

var opusCodec = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   audio.SampleRate,
	Channels:    audio.Channels,
	SDPFmtpLine: "minptime=10;useinbandfec=1",
}

// newPeerConnection creates a PeerConnection that only speaks Opus audio.
func newPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: opusCodec,
		PayloadType:        audio.PayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(config)
}

// peerTransport implements transport on a pion PeerConnection with one
// local audio track and the chat data channel.
type peerTransport struct {
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticRTP
	logger *slog.Logger

	mu sync.Mutex
	dc *webrtc.DataChannel
}

func newPeerTransport(iceServers []string, initiator bool, ev transportEvents, logger *slog.Logger) (*peerTransport, error) {
	pc, err := newPeerConnection(iceServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	t := &peerTransport{pc: pc, logger: logger}

	id := uuid.NewString()
	t.track, err = webrtc.NewTrackLocalStaticRTP(opusCodec, "audio-"+id, "stream-"+id)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	sender, err := pc.AddTrack(t.track)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	// Read and discard RTCP packets
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			logger.Warn("encode local candidate", "error", err)
			return
		}
		ev.onCandidate(b)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", "state", state.String())
		ev.onStatus(transportStatus(state))
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info("remote track", "id", track.ID(), "codec", track.Codec().MimeType)
		if ev.onTrack != nil {
			go ev.onTrack(track)
		}
	})

	if initiator {
		dc, err := pc.CreateDataChannel(ChatLabel, nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to create chat channel: %w", err)
		}
		t.attach(dc, ev)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != ChatLabel {
				logger.Debug("ignoring data channel", "label", dc.Label())
				return
			}
			t.attach(dc, ev)
		})
	}

	return t, nil
}

func (t *peerTransport) attach(dc *webrtc.DataChannel, ev transportEvents) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ev.onData(msg.Data)
	})
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()
}

func (t *peerTransport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (t *peerTransport) CreateAnswer() (string, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (t *peerTransport) SetLocalDescription(kind signaling.SignalKind, sdp string) error {
	return t.pc.SetLocalDescription(description(kind, sdp))
}

func (t *peerTransport) SetRemoteDescription(kind signaling.SignalKind, sdp string) error {
	return t.pc.SetRemoteDescription(description(kind, sdp))
}

func (t *peerTransport) AddCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return t.pc.AddICECandidate(init)
}

func (t *peerTransport) SendData(b []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChatUnavailable
	}
	return dc.Send(b)
}

func (t *peerTransport) WriteAudio(pkt *audio.Packet) error {
	return t.track.WriteRTP(pkt)
}

func (t *peerTransport) Close() error {
	return t.pc.Close()
}

func description(kind signaling.SignalKind, sdp string) webrtc.SessionDescription {
	typ := webrtc.SDPTypeOffer
	if kind == signaling.SignalAnswer {
		typ = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: typ, SDP: sdp}
}

func transportStatus(state webrtc.PeerConnectionState) TransportStatus {
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		return TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return TransportClosed
	default:
		return TransportNew
	}
}

// trackReader adapts a remote track to audio.PacketReader.
type trackReader struct {
	track *webrtc.TrackRemote
}

func (r trackReader) ReadPacket() (*audio.Packet, error) {
	pkt, _, err := r.track.ReadRTP()
	return pkt, err
}

// ReadTrack decodes a remote Opus track to interleaved 48kHz stereo PCM,
// calling fn once per frame until the track ends.
func ReadTrack(track *webrtc.TrackRemote, fn func(pcm []int16)) error {
	dec, err := audio.NewOpusDecoder(audio.SampleRate, audio.Channels)
	if err != nil {
		return err
	}
	return audio.DecodeTrack(trackReader{track: track}, dec, fn)
}
