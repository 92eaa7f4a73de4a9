package wire

import (
	"bytes"
	"testing"
)

type textMessage struct {
	Envelope
	Contents string `cbor:"Contents" json:"Contents"`
}

const tagText = "UMPS.MessageFormats.Text"

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(tagText, func() interface{} { return &textMessage{} }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

// A message round-trips through its two-frame wire form unchanged.
func TestMessage_FramesRoundTrip(t *testing.T) {
	m := Message{Tag: "x.y", Body: []byte("body")}
	got, err := FromFrames(m.Frames())
	if err != nil {
		t.Fatalf("FromFrames: %v", err)
	}
	if got.Tag != m.Tag || !bytes.Equal(got.Body, m.Body) {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestFromFrames_WrongCount(t *testing.T) {
	if _, err := FromFrames([][]byte{[]byte("only one")}); err == nil {
		t.Fatal("expected an error for a non-two-frame message")
	}
}

// A registered type round-trips through encode/decode, both in CBOR and
// in the JSON debug variant.
func TestRegistry_RoundTrip(t *testing.T) {
	for _, debug := range []bool{false, true} {
		Debug = debug
		t.Run(map[bool]string{false: "cbor", true: "json"}[debug], func(t *testing.T) {
			reg := newRegistry(t)
			want := textMessage{Envelope: NewEnvelope(tagText), Contents: "A text message"}

			msg, err := Encode(tagText, want)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			decoded, err := reg.Decode(msg)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			got, ok := decoded.(*textMessage)
			if !ok {
				t.Fatalf("decoded value has type %T", decoded)
			}
			if got.Contents != want.Contents {
				t.Errorf("Contents = %q, want %q", got.Contents, want.Contents)
			}
		})
	}
	Debug = false
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := newRegistry(t)
	if err := reg.Register(tagText, func() interface{} { return &textMessage{} }); err == nil {
		t.Fatal("expected an error registering the same tag twice")
	}
}

func TestRegistry_UnknownTag(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.New("nope"); err == nil {
		t.Fatal("expected an error for an unregistered tag")
	}
}

func TestRegistry_MessageTypeMismatchRejected(t *testing.T) {
	reg := newRegistry(t)
	msg, err := Encode(tagText, textMessage{Envelope: NewEnvelope("some.other.tag"), Contents: "x"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := reg.Decode(msg); err == nil {
		t.Fatal("expected a MessageType mismatch error")
	}
}
