package audio

import (
	"fmt"
	"time"

	"gopkg.in/hraban/opus.v2"
)

// Call audio format on the wire.
const (
	SampleRate    = 48000
	Channels      = 2
	FrameSamples  = 960 // per channel, 20ms at 48kHz
	FrameDuration = 20 * time.Millisecond

	// PayloadType is the dynamic RTP payload type registered for Opus.
	PayloadType = 111

	voiceBitrate = 64000

	// Largest frame Opus produces: 120ms at 48kHz.
	maxFrameSamples = 5760
	maxPacketBytes  = 1500
)

// OpusEncoder encodes interleaved PCM frames to Opus.
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int
}

// NewOpusEncoder creates a VoIP-tuned encoder. frameSize is in samples per
// channel.
func NewOpusEncoder(sampleRate, channels, frameSize int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(voiceBitrate); err != nil {
		return nil, fmt.Errorf("opus bitrate: %w", err)
	}

	return &OpusEncoder{
		encoder:   enc,
		channels:  channels,
		frameSize: frameSize,
	}, nil
}

// Encode encodes exactly one frame of interleaved samples.
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != e.frameSize*e.channels {
		return nil, fmt.Errorf("opus encode: got %d samples, want %d", len(pcm), e.frameSize*e.channels)
	}
	data := make([]byte, maxPacketBytes)
	n, err := e.encoder.Encode(pcm, data)
	if err != nil {
		return nil, err
	}
	return data[:n], nil
}

// FrameSize returns the frame size in samples per channel
func (e *OpusEncoder) FrameSize() int {
	return e.frameSize
}

// OpusDecoder decodes Opus packets to interleaved PCM.
type OpusDecoder struct {
	decoder  *opus.Decoder
	channels int
}

func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &OpusDecoder{decoder: dec, channels: channels}, nil
}

// Decode returns the interleaved samples carried by one packet.
func (d *OpusDecoder) Decode(packet []byte) ([]int16, error) {
	pcm := make([]int16, maxFrameSamples*d.channels)
	n, err := d.decoder.Decode(packet, pcm)
	if err != nil {
		return nil, err
	}
	return pcm[:n*d.channels], nil
}

// Channels returns the number of channels
func (d *OpusDecoder) Channels() int {
	return d.channels
}
