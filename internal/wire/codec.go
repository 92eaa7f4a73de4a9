package wire

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MessageVersion is stamped on every command-plane body.
const MessageVersion = "1.0.0"

// Envelope carries the two fields every encoded body must have: MessageType
// (must equal the registered tag) and MessageVersion. Typed bodies embed
// Envelope and add their own fields.
type Envelope struct {
	MessageType    string `cbor:"MessageType" json:"MessageType"`
	MessageVersion string `cbor:"MessageVersion" json:"MessageVersion"`
}

// NewEnvelope builds the invariant header for a message of the given tag.
func NewEnvelope(tag string) Envelope {
	return Envelope{MessageType: tag, MessageVersion: MessageVersion}
}

// Tag returns the message's registered type tag. Types that embed
// Envelope get this for free, letting a handler recover a reply's own
// tag without re-deriving it from the request it answered.
func (e Envelope) Tag() string {
	return e.MessageType
}

// Tagged is satisfied by any type embedding Envelope.
type Tagged interface {
	Tag() string
}

// Debug toggles the wire codec between CBOR (production) and JSON
// (debugging only). It is a package-level switch rather than a per-call
// option because it must apply uniformly to every registered codec for a
// debug session to be legible.
var Debug = false

// Marshal encodes v with the active wire codec (CBOR unless Debug is set).
func Marshal(v interface{}) ([]byte, error) {
	if Debug {
		return json.Marshal(v)
	}
	return cbor.Marshal(v)
}

// Unmarshal decodes data with the active wire codec into v.
func Unmarshal(data []byte, v interface{}) error {
	if Debug {
		return json.Unmarshal(data, v)
	}
	return cbor.Unmarshal(data, v)
}

// envelopeTag is the minimal shape needed to read MessageType back out of
// an encoded body without knowing its concrete Go type.
type envelopeTag struct {
	MessageType string `cbor:"MessageType" json:"MessageType"`
}

// peekTag reads MessageType out of an encoded body for registry dispatch.
func peekTag(data []byte) (string, error) {
	var e envelopeTag
	if err := Unmarshal(data, &e); err != nil {
		return "", err
	}
	return e.MessageType, nil
}

// Constructor returns a freshly initialized, empty value for a registered
// type tag. Registries store one Constructor per tag so a generic
// receive loop can allocate the right concrete type before decoding.
type Constructor func() interface{}

// Registry is the process-wide mapping from type tag to constructor. It
// is safe to read concurrently once fully populated at startup; Register
// is not synchronized because registration happens once, before any
// socket using the registry starts its poll loop.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor for tag. Registering the same tag twice is
// an error.
func (r *Registry) Register(tag string, ctor Constructor) error {
	if _, exists := r.constructors[tag]; exists {
		return &CodecError{Tag: tag, Op: "register", Err: fmt.Errorf("tag already registered")}
	}
	r.constructors[tag] = ctor
	return nil
}

// New allocates a fresh empty value for tag, or reports that the tag is
// unknown.
func (r *Registry) New(tag string) (interface{}, error) {
	ctor, ok := r.constructors[tag]
	if !ok {
		return nil, &CodecError{Tag: tag, Op: "new", Err: fmt.Errorf("unregistered type tag")}
	}
	return ctor(), nil
}

// Decode reads a Message's body into a freshly constructed value for its
// tag, validating that the body's own MessageType field agrees with the
// wire tag; a mismatch is rejected.
func (r *Registry) Decode(msg Message) (interface{}, error) {
	v, err := r.New(msg.Tag)
	if err != nil {
		return nil, err
	}
	bodyTag, err := peekTag(msg.Body)
	if err != nil {
		return nil, &CodecError{Tag: msg.Tag, Op: "decode", Err: err}
	}
	if bodyTag != msg.Tag {
		return nil, &CodecError{Tag: msg.Tag, Op: "decode", Err: fmt.Errorf("body MessageType %q does not match frame tag %q", bodyTag, msg.Tag)}
	}
	if err := Unmarshal(msg.Body, v); err != nil {
		return nil, &CodecError{Tag: msg.Tag, Op: "decode", Err: err}
	}
	return v, nil
}

// Encode produces a Message for a tagged value. The value's own
// MessageType field (set via an embedded Envelope) must equal tag.
func Encode(tag string, v interface{}) (Message, error) {
	body, err := Marshal(v)
	if err != nil {
		return Message{}, &CodecError{Tag: tag, Op: "encode", Err: err}
	}
	return Message{Tag: tag, Body: body}, nil
}
