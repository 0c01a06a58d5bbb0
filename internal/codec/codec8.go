package codec

import (
	"encoding/binary"
)

// Envelope size around the payload: 4B preamble + 4B length before it,
// 4B zero-padded CRC after it.
const (
	headerSize   = 8
	crcFieldSize = 4

	// Teltonika caps AVL frames at 1280 bytes of payload.
	maxDataFieldLength = 1280
)

// FrameSize reports the total byte length of the frame starting at buf, or
// zero when fewer than 8 bytes are buffered. Used by the session accumulator
// to slice complete frames out of the TCP stream.
func FrameSize(buf []byte) (int, error) {
	if len(buf) < headerSize {
		return 0, nil
	}
	if binary.BigEndian.Uint32(buf) != 0 {
		return 0, decodeErrf(0, "invalid preamble (expected 0x00000000)")
	}
	dataFieldLength := binary.BigEndian.Uint32(buf[4:])
	if dataFieldLength > maxDataFieldLength {
		return 0, decodeErrf(4, "data field length %d exceeds %d", dataFieldLength, maxDataFieldLength)
	}
	return headerSize + int(dataFieldLength) + crcFieldSize, nil
}

// DecodePacket decodes one whole Codec 8 or Codec 8E frame. It is stateless,
// big-endian throughout, and never reads past data. CRC mismatch is reported
// through the packet (compare CRC against Crc16IBM over the payload), not as
// an error: observed field traffic carries frames the devices never sign
// correctly.
func DecodePacket(data []byte) (*DecodedPacket, error) {
	r := &frameReader{input: data}

	preamble, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if preamble != 0 {
		return nil, decodeErrf(0, "invalid preamble 0x%08x (expected 0x00000000)", preamble)
	}

	dataFieldLength, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if dataFieldLength > maxDataFieldLength {
		return nil, decodeErrf(4, "data field length %d exceeds %d", dataFieldLength, maxDataFieldLength)
	}
	if int(dataFieldLength)+headerSize+crcFieldSize > len(data) {
		return nil, decodeErrf(8, "declared payload %d exceeds input (%d bytes)", dataFieldLength, len(data))
	}

	codecID, err := r.readU8()
	if err != nil {
		return nil, err
	}
	if CodecID(codecID) != Codec8 && CodecID(codecID) != Codec8E {
		return nil, decodeErrf(r.pos-1, "unsupported codec 0x%02x", codecID)
	}

	count1, err := r.readU8()
	if err != nil {
		return nil, err
	}

	pkt := &DecodedPacket{
		DataFieldLength: dataFieldLength,
		CodecID:         CodecID(codecID),
		NumberOfData1:   count1,
		Records:         make([]AVLRecord, count1),
	}

	for i := 0; i < int(count1); i++ {
		if err := decodeRecord(r, pkt.CodecID, &pkt.Records[i]); err != nil {
			return nil, err
		}
	}

	count2, err := r.readU8()
	if err != nil {
		return nil, err
	}
	if count2 != count1 {
		return nil, decodeErrf(r.pos-1, "record count mismatch: %d != %d", count1, count2)
	}
	pkt.NumberOfData2 = count2

	crc, err := r.readU32()
	if err != nil {
		return nil, err
	}
	pkt.CRC = crc

	return pkt, nil
}

// PayloadCRC computes the CRC-16/IBM over [codecId .. numberOfData2] of a
// whole frame, for comparison against the trailing CRC field.
func PayloadCRC(frame []byte) uint16 {
	if len(frame) < headerSize+crcFieldSize {
		return 0
	}
	return Crc16IBM(frame[headerSize : len(frame)-crcFieldSize])
}

func decodeRecord(r *frameReader, codecID CodecID, rec *AVLRecord) error {
	var err error
	if rec.TimestampMs, err = r.readU64(); err != nil {
		return err
	}
	if rec.Priority, err = r.readU8(); err != nil {
		return err
	}

	lon, err := r.readU32()
	if err != nil {
		return err
	}
	lat, err := r.readU32()
	if err != nil {
		return err
	}
	rec.GPS.Longitude = int32(lon)
	rec.GPS.Latitude = int32(lat)
	if rec.GPS.Altitude, err = r.readU16(); err != nil {
		return err
	}
	if rec.GPS.Angle, err = r.readU16(); err != nil {
		return err
	}
	if rec.GPS.Satellites, err = r.readU8(); err != nil {
		return err
	}
	if rec.GPS.Speed, err = r.readU16(); err != nil {
		return err
	}

	if codecID == Codec8 {
		return decodeElements8(r, rec)
	}
	return decodeElements8E(r, rec)
}

// Codec 8: 1-byte event id and counts, four fixed-width groups.
func decodeElements8(r *frameReader, rec *AVLRecord) error {
	eventID, err := r.readU8()
	if err != nil {
		return err
	}
	total, err := r.readU8()
	if err != nil {
		return err
	}
	rec.EventID = uint16(eventID)
	rec.Elements = make([]IOElement, 0, total)

	for width := 1; width <= 8; width *= 2 {
		n, err := r.readU8()
		if err != nil {
			return err
		}
		for j := 0; j < int(n); j++ {
			id, err := r.readU8()
			if err != nil {
				return err
			}
			val, err := readValue(r, width)
			if err != nil {
				return err
			}
			if len(rec.Elements) >= int(total) {
				return decodeErrf(r.pos, "more than %d i/o elements", total)
			}
			rec.Elements = append(rec.Elements, IOElement{ID: uint16(id), Size: width, Value: val})
		}
	}
	if len(rec.Elements) != int(total) {
		return decodeErrf(r.pos, "i/o element count %d does not match declared %d", len(rec.Elements), total)
	}
	return nil
}

// Codec 8E: 2-byte event id and counts, four fixed-width groups plus the NX
// group of variable-length elements.
func decodeElements8E(r *frameReader, rec *AVLRecord) error {
	eventID, err := r.readU16()
	if err != nil {
		return err
	}
	total, err := r.readU16()
	if err != nil {
		return err
	}
	rec.EventID = eventID
	rec.Elements = make([]IOElement, 0, total)

	for width := 1; width <= 8; width *= 2 {
		n, err := r.readU16()
		if err != nil {
			return err
		}
		for j := 0; j < int(n); j++ {
			id, err := r.readU16()
			if err != nil {
				return err
			}
			val, err := readValue(r, width)
			if err != nil {
				return err
			}
			if len(rec.Elements) >= int(total) {
				return decodeErrf(r.pos, "more than %d i/o elements", total)
			}
			rec.Elements = append(rec.Elements, IOElement{ID: id, Size: width, Value: val})
		}
	}

	nxCount, err := r.readU16()
	if err != nil {
		return err
	}
	for j := 0; j < int(nxCount); j++ {
		id, err := r.readU16()
		if err != nil {
			return err
		}
		length, err := r.readU16()
		if err != nil {
			return err
		}
		raw, err := r.readBytes(int(length))
		if err != nil {
			return err
		}
		if len(rec.Elements) >= int(total) {
			return decodeErrf(r.pos, "more than %d i/o elements", total)
		}
		rec.Elements = append(rec.Elements, IOElement{ID: id, Size: int(length), Raw: raw, Variable: true})
	}

	if len(rec.Elements) != int(total) {
		return decodeErrf(r.pos, "i/o element count %d does not match declared %d", len(rec.Elements), total)
	}
	return nil
}

// readValue reads a fixed-width group value as unsigned big-endian. 8-byte
// values stay uint64 end to end; signed interpretation happens at
// normalization for the documented signed ids only.
func readValue(r *frameReader, width int) (uint64, error) {
	switch width {
	case 1:
		v, err := r.readU8()
		return uint64(v), err
	case 2:
		v, err := r.readU16()
		return uint64(v), err
	case 4:
		v, err := r.readU32()
		return uint64(v), err
	case 8:
		return r.readU64()
	}
	return 0, decodeErrf(r.pos, "invalid group width %d", width)
}
