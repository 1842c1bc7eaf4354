package audio

import "github.com/pion/rtp"

// Packet is an RTP packet.
type Packet = rtp.Packet

// Packetizer wraps encoded frames in RTP packets with advancing sequence
// numbers and timestamps.
type Packetizer struct {
	ssrc            uint32
	payloadType     uint8
	samplesPerFrame uint32
	seq             uint16
	timestamp       uint32
}

func NewPacketizer(ssrc uint32, payloadType uint8, samplesPerFrame uint32) *Packetizer {
	return &Packetizer{
		ssrc:            ssrc,
		payloadType:     payloadType,
		samplesPerFrame: samplesPerFrame,
	}
}

// Packetize returns the next packet carrying payload.
func (p *Packetizer) Packetize(payload []byte) *rtp.Packet {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    p.payloadType,
			SequenceNumber: p.seq,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}
	p.seq++
	p.timestamp += p.samplesPerFrame
	return pkt
}
