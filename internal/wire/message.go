// Package wire implements the two-frame message envelope and the codec
// registry that every broker, worker, and client in this module builds on.
//
// Every unit of application-level communication is a (type tag, body)
// pair sent atomically as two frames. The type tag is a stable,
// domain-dotted string; the body is an opaque payload produced and
// consumed by a codec registered for that tag.
package wire

import "fmt"

// Message is the wire-level (type tag, body) pair. It never carries the
// broker-added routing frames (ROUTER identity, empty delimiter) — those
// are a transport concern, layered on top of a Message by
// internal/transport and internal/cmdbroker.
type Message struct {
	Tag  string
	Body []byte
}

// Frames returns the two-frame wire representation of m.
func (m Message) Frames() [][]byte {
	return [][]byte{[]byte(m.Tag), m.Body}
}

// FromFrames reconstructs a Message from a received multipart message.
// Receipt of a message whose frame count is not two is a framing error:
// FromFrames returns ErrFrameCount for it, and the caller logs it and
// drops the message.
func FromFrames(frames [][]byte) (Message, error) {
	if len(frames) != 2 {
		return Message{}, fmt.Errorf("%w: expected 2 frames, got %d", ErrFrameCount, len(frames))
	}
	return Message{Tag: string(frames[0]), Body: frames[1]}, nil
}
