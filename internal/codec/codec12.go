package codec

import (
	"encoding/binary"
	"errors"
)

// BuildCodec12 builds a Codec 12 command frame (type 0x05) carrying the ASCII
// command text, e.g. "getver".
// Frame = 00000000 | dataSize(4B) | payload | crc(4B)
// payload = 0x0C | 0x01 | 0x05 | cmdLen(4B) | cmd | 0x01
func BuildCodec12(cmd string) []byte {
	cmdBytes := []byte(cmd)

	payload := make([]byte, 0, 8+len(cmdBytes))
	payload = append(payload, 0x0C, 0x01, 0x05)
	payload = binary.BigEndian.AppendUint32(payload, uint32(len(cmdBytes)))
	payload = append(payload, cmdBytes...)
	payload = append(payload, 0x01)

	crc := Crc16IBM(payload)

	out := make([]byte, 0, headerSize+len(payload)+crcFieldSize)
	out = append(out, 0, 0, 0, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, payload...)
	out = append(out, 0, 0, byte(crc>>8), byte(crc))
	return out
}

// ParseCodec12Response extracts the ASCII text of a Codec 12 response frame
// (type 0x06).
func ParseCodec12Response(frame []byte) (string, error) {
	if len(frame) < 12 {
		return "", errors.New("frame too short")
	}
	dataLen := int(binary.BigEndian.Uint32(frame[4:8]))
	if 8+dataLen+4 > len(frame) {
		return "", errors.New("incomplete frame")
	}
	payload := frame[8 : 8+dataLen]

	if len(payload) < 1 || payload[0] != 0x0C {
		return "", errors.New("not codec 0x0C")
	}
	if len(payload) < 3 || payload[2] != 0x06 {
		return "", errors.New("not a response type")
	}
	if len(payload) < 7 {
		return "", errors.New("payload too short")
	}
	respSize := int(binary.BigEndian.Uint32(payload[3:7]))
	if 7+respSize+1 > len(payload) {
		return "", errors.New("bad response size")
	}
	return string(payload[7 : 7+respSize]), nil
}

// IsCodec12 reports whether a complete frame carries a Codec 12 payload, so
// the session can route command responses away from the AVL path.
func IsCodec12(frame []byte) bool {
	return len(frame) > 8 && frame[8] == 0x0C
}
