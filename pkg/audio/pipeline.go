package audio

import "fmt"

type frameEncoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Pipeline turns PCM of any rate and channel count into 20ms Opus frames at
// 48kHz stereo, buffering partial frames between calls.
type Pipeline struct {
	inChannels int
	resampler  *Resampler
	encoder    frameEncoder
	buffer     []int16
}

// NewPipeline creates a pipeline for PCM captured at inRate with
// inChannels interleaved channels.
func NewPipeline(inRate, inChannels int) (*Pipeline, error) {
	if inRate <= 0 || inChannels <= 0 {
		return nil, fmt.Errorf("invalid input format %dHz/%dch", inRate, inChannels)
	}
	encoder, err := NewOpusEncoder(SampleRate, Channels, FrameSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return newPipeline(inRate, inChannels, encoder), nil
}

func newPipeline(inRate, inChannels int, enc frameEncoder) *Pipeline {
	return &Pipeline{
		inChannels: inChannels,
		resampler:  NewResampler(inChannels, inRate, SampleRate),
		encoder:    enc,
	}
}

// Process converts pcm and returns every complete Opus frame now
// available. The remainder stays buffered for the next call.
func (p *Pipeline) Process(pcm []int16) ([][]byte, error) {
	if len(pcm) == 0 {
		return nil, nil
	}

	stereo := ToStereo(p.resampler.Process(pcm), p.inChannels)
	p.buffer = append(p.buffer, stereo...)
	return p.drain()
}

// Flush pads the buffered remainder with silence and encodes it.
func (p *Pipeline) Flush() ([][]byte, error) {
	p.buffer = append(p.buffer, ToStereo(p.resampler.Flush(), p.inChannels)...)
	if rem := len(p.buffer) % frameLen; rem != 0 {
		p.buffer = append(p.buffer, make([]int16, frameLen-rem)...)
	}
	return p.drain()
}

// Reset drops buffered samples.
func (p *Pipeline) Reset() {
	p.resampler.Reset()
	p.buffer = p.buffer[:0]
}

const frameLen = FrameSamples * Channels

func (p *Pipeline) drain() ([][]byte, error) {
	var frames [][]byte
	for len(p.buffer) >= frameLen {
		frame := p.buffer[:frameLen]
		encoded, err := p.encoder.Encode(frame)
		p.buffer = p.buffer[frameLen:]
		if err != nil {
			return frames, fmt.Errorf("encode frame: %w", err)
		}
		frames = append(frames, encoded)
	}
	// Compact so the backing array does not grow without bound.
	p.buffer = append(p.buffer[:0:0], p.buffer...)
	return frames, nil
}
