package audio

import (
	"errors"
	"io"
)

// PacketReader yields RTP packets from a remote track.
type PacketReader interface {
	ReadPacket() (*Packet, error)
}

// DecodeTrack reads packets from r until it fails and hands each decoded
// frame to fn. Undecodable packets are skipped. io.EOF ends the track
// without error.
func DecodeTrack(r PacketReader, dec *OpusDecoder, fn func(pcm []int16)) error {
	for {
		pkt, err := r.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		pcm, err := dec.Decode(pkt.Payload)
		if err != nil {
			continue
		}
		fn(pcm)
	}
}
