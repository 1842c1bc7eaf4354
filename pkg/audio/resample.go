package audio

import "math"

// Resample converts interleaved PCM between sample rates using linear
// interpolation, channel by channel. It treats pcm as a complete signal;
// use a Resampler for a stream delivered in chunks.
func Resample(pcm []int16, channels, inRate, outRate int) []int16 {
	if inRate == outRate || len(pcm) == 0 || channels < 1 {
		return pcm
	}

	inFrames := len(pcm) / channels
	ratio := float64(outRate) / float64(inRate)
	outFrames := int(float64(inFrames) * ratio)
	out := make([]int16, outFrames*channels)

	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) / ratio
		idx1 := int(srcPos)
		frac := srcPos - float64(idx1)

		idx2 := idx1 + 1
		if idx1 >= inFrames {
			idx1 = inFrames - 1
		}
		if idx2 >= inFrames {
			idx2 = inFrames - 1
		}

		for ch := 0; ch < channels; ch++ {
			s1 := float64(pcm[idx1*channels+ch])
			s2 := float64(pcm[idx2*channels+ch])
			out[i*channels+ch] = int16(math.Round(s1*(1-frac) + s2*frac))
		}
	}
	return out
}

// Resampler is a streaming Resample. It keeps the read position and the
// last input frame between calls, so a stream split into chunks of any size
// resamples exactly like the whole stream at once.
type Resampler struct {
	channels int
	inRate   int64
	outRate  int64

	// pos is the next output position in 1/outRate input frames, relative to
	// the first frame of the next chunk. It never drops below -outRate.
	pos  int64
	last []int16
}

func NewResampler(channels, inRate, outRate int) *Resampler {
	return &Resampler{channels: channels, inRate: int64(inRate), outRate: int64(outRate)}
}

// Process resamples the next chunk of interleaved PCM. The output lags the
// input by at most one input frame; Flush releases it.
func (r *Resampler) Process(pcm []int16) []int16 {
	if r.inRate == r.outRate || r.channels < 1 {
		return pcm
	}
	n := int64(len(pcm) / r.channels)
	if n == 0 {
		return nil
	}

	sample := func(i int64, ch int) float64 {
		if i < 0 {
			return float64(r.last[ch])
		}
		return float64(pcm[int(i)*r.channels+ch])
	}

	out := make([]int16, 0, int(n*r.outRate/r.inRate+1)*r.channels)
	for {
		idx1 := (r.pos+r.outRate)/r.outRate - 1
		if idx1+1 >= n {
			break
		}
		frac := float64(r.pos-idx1*r.outRate) / float64(r.outRate)
		for ch := 0; ch < r.channels; ch++ {
			s1, s2 := sample(idx1, ch), sample(idx1+1, ch)
			out = append(out, int16(math.Round(s1*(1-frac)+s2*frac)))
		}
		r.pos += r.inRate
	}

	r.pos -= n * r.outRate
	r.last = append(r.last[:0], pcm[int(n-1)*r.channels:int(n)*r.channels]...)
	return out
}

// Flush emits the output still owed for the final input frame and resets
// the stream.
func (r *Resampler) Flush() []int16 {
	var out []int16
	if r.last != nil {
		for ; r.pos < 0; r.pos += r.inRate {
			out = append(out, r.last...)
		}
	}
	r.Reset()
	return out
}

func (r *Resampler) Reset() {
	r.pos = 0
	r.last = nil
}

// ToStereo converts interleaved PCM with the given channel count to
// interleaved stereo. Mono is duplicated; extra channels beyond the first
// two are dropped.
func ToStereo(pcm []int16, channels int) []int16 {
	switch {
	case channels == 2:
		return pcm
	case channels < 1:
		return nil
	}

	frames := len(pcm) / channels
	out := make([]int16, frames*2)
	for i := 0; i < frames; i++ {
		left := pcm[i*channels]
		right := left
		if channels > 1 {
			right = pcm[i*channels+1]
		}
		out[i*2] = left
		out[i*2+1] = right
	}
	return out
}
