package signaling

import (
	"encoding/json"
	"fmt"
)

// SignalKind is the closed set of handshake message kinds the server
// relays. A present but unknown value is rejected at decode time; an
// absent one decodes to the zero kind, which Valid reports as invalid.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// ParseSignalKind validates s.
func ParseSignalKind(s string) (SignalKind, error) {
	switch k := SignalKind(s); k {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return k, nil
	default:
		return "", fmt.Errorf("unknown signal kind %q", s)
	}
}

// Valid reports whether k is one of the relayed kinds.
func (k SignalKind) Valid() bool {
	_, err := ParseSignalKind(string(k))
	return err == nil
}

func (k *SignalKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseSignalKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
