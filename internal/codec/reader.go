package codec

import (
	"encoding/binary"
	"fmt"
)

// DecodeError reports a codec violation together with the byte offset where
// it was detected. The whole frame must be discarded when one is returned.
type DecodeError struct {
	Offset int
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at offset %d: %s", e.Offset, e.Msg)
}

func decodeErrf(offset int, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// frameReader walks a single frame without ever reading past its input.
type frameReader struct {
	input []byte
	pos   int
}

func (r *frameReader) require(n int) error {
	if r.pos+n > len(r.input) {
		return decodeErrf(r.pos, "need %d bytes, %d left", n, len(r.input)-r.pos)
	}
	return nil
}

func (r *frameReader) readU8() (uint8, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.input[r.pos]
	r.pos++
	return v, nil
}

func (r *frameReader) readU16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.input[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *frameReader) readU32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.input[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *frameReader) readU64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.input[r.pos:])
	r.pos += 8
	return v, nil
}

// readBytes copies out of the input so decoded elements stay valid after the
// connection buffer is reused.
func (r *frameReader) readBytes(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.input[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}
