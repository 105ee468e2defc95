package relay

// Kind identifies the frame type of a Message.
type Kind uint8

const (
	// Text is a UTF-8 text frame.
	Text Kind = iota + 1
	// Binary is an opaque binary frame.
	Binary
	// Close signals that the sending side is shutting the stream down.
	Close
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Binary:
		return "binary"
	case Close:
		return "close"
	default:
		return "unknown"
	}
}

// Message is an immutable relayed payload. Fan-out shares Payload between
// all destinations, so it must never be modified after construction.
type Message struct {
	Kind    Kind
	Payload []byte
}

// TextMessage builds a text Message from s.
func TextMessage(s string) Message {
	return Message{Kind: Text, Payload: []byte(s)}
}

// CloseMessage is the control message used to end a stream.
func CloseMessage() Message {
	return Message{Kind: Close}
}

// IsClose reports whether m is a close signal.
func (m Message) IsClose() bool {
	return m.Kind == Close
}
