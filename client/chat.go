package client

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ChatLabel is the label of the data channel that carries chat.
const ChatLabel = "chat"

// ChatFrame is one chat message on the data channel.
type ChatFrame struct {
	Text   string    `msgpack:"text"`
	SentAt time.Time `msgpack:"sentAt"`
}

func encodeChat(f ChatFrame) ([]byte, error) {
	b, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode chat frame: %w", err)
	}
	return b, nil
}

func decodeChat(b []byte) (ChatFrame, error) {
	var f ChatFrame
	if err := msgpack.Unmarshal(b, &f); err != nil {
		return ChatFrame{}, fmt.Errorf("decode chat frame: %w", err)
	}
	return f, nil
}

// ChatMessage is a chat line delivered to the application.
type ChatMessage struct {
	From string
	Text string

	// ViaServer is set when the message arrived through the signaling
	// server instead of the data channel.
	ViaServer bool
}
