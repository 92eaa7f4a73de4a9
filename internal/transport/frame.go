package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameBytes bounds a single frame so a corrupt length prefix can
// never trigger an enormous allocation.
const maxFrameBytes = 64 << 20

// writeFrames writes a multipart message as a frame count followed by
// length-prefixed frames.
func writeFrames(w io.Writer, frames [][]byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frames)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	for _, f := range frames {
		binary.BigEndian.PutUint32(header[:], uint32(len(f)))
		if _, err := w.Write(header[:]); err != nil {
			return err
		}
		if len(f) == 0 {
			continue
		}
		if _, err := w.Write(f); err != nil {
			return err
		}
	}
	return nil
}

func readFrames(r io.Reader) ([][]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(header[:])
	frames := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint32(header[:])
		if n > maxFrameBytes {
			return nil, fmt.Errorf("transport: frame of %d bytes exceeds limit", n)
		}
		buf := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
		}
		frames = append(frames, buf)
	}
	return frames, nil
}
