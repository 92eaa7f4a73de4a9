package wire

import "errors"

// ErrFrameCount is returned by FromFrames when a received multipart
// message does not have exactly two frames.
var ErrFrameCount = errors.New("wire: message did not have exactly two frames")

// CodecError reports a duplicate registration, an unregistered tag, an
// encode or decode failure, or a body whose MessageType does not match
// its frame tag. MessageVersion is not checked.
type CodecError struct {
	Tag string
	Op  string // "encode", "decode", "register", or "new"
	Err error
}

func (e *CodecError) Error() string {
	return "wire: " + e.Op + " " + e.Tag + ": " + e.Err.Error()
}

func (e *CodecError) Unwrap() error { return e.Err }
