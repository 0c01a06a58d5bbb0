package codec

import (
	"encoding/binary"
	"fmt"
)

// EncodePacket renders a packet back to wire bytes, including a freshly
// computed CRC. The gateway never transmits AVL frames; the encoder exists so
// decoder tests can build reference traffic and prove round-trips.
func EncodePacket(pkt *DecodedPacket) ([]byte, error) {
	if pkt.CodecID != Codec8 && pkt.CodecID != Codec8E {
		return nil, fmt.Errorf("unsupported codec 0x%02x", uint8(pkt.CodecID))
	}
	if len(pkt.Records) > 255 {
		return nil, fmt.Errorf("too many records: %d", len(pkt.Records))
	}

	payloadSize := 3 // codec id + both counts
	for i := range pkt.Records {
		n, err := recordSize(pkt.CodecID, &pkt.Records[i])
		if err != nil {
			return nil, err
		}
		payloadSize += n
	}

	buf := make([]byte, headerSize+payloadSize+crcFieldSize)
	binary.BigEndian.PutUint32(buf[4:], uint32(payloadSize))

	pos := headerSize
	buf[pos] = uint8(pkt.CodecID)
	buf[pos+1] = uint8(len(pkt.Records))
	pos += 2
	for i := range pkt.Records {
		n, err := encodeRecord(pkt.CodecID, &pkt.Records[i], buf[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
	}
	buf[pos] = uint8(len(pkt.Records))
	pos++

	crc := Crc16IBM(buf[headerSize:pos])
	binary.BigEndian.PutUint32(buf[pos:], uint32(crc))
	return buf, nil
}

func recordSize(codecID CodecID, rec *AVLRecord) (int, error) {
	size := 24 // timestamp + priority + GPS element
	if codecID == Codec8 {
		size += 6 // event id + total + four 1B group counts
		for i := range rec.Elements {
			el := &rec.Elements[i]
			if el.Variable {
				return 0, fmt.Errorf("codec 8 cannot carry variable-length element %d", el.ID)
			}
			if el.ID > 255 {
				return 0, fmt.Errorf("codec 8 element id %d exceeds one byte", el.ID)
			}
			size += 1 + el.Size
		}
		return size, nil
	}
	size += 14 // event id + total + four 2B group counts + NX count
	for i := range rec.Elements {
		el := &rec.Elements[i]
		if el.Variable {
			size += 4 + len(el.Raw)
		} else {
			size += 2 + el.Size
		}
	}
	return size, nil
}

func encodeRecord(codecID CodecID, rec *AVLRecord, buf []byte) (int, error) {
	binary.BigEndian.PutUint64(buf, rec.TimestampMs)
	buf[8] = rec.Priority
	binary.BigEndian.PutUint32(buf[9:], uint32(rec.GPS.Longitude))
	binary.BigEndian.PutUint32(buf[13:], uint32(rec.GPS.Latitude))
	binary.BigEndian.PutUint16(buf[17:], rec.GPS.Altitude)
	binary.BigEndian.PutUint16(buf[19:], rec.GPS.Angle)
	buf[21] = rec.GPS.Satellites
	binary.BigEndian.PutUint16(buf[22:], rec.GPS.Speed)
	pos := 24

	if codecID == Codec8 {
		buf[pos] = uint8(rec.EventID)
		buf[pos+1] = uint8(len(rec.Elements))
		pos += 2
		for width := 1; width <= 8; width *= 2 {
			countPos := pos
			pos++
			written := 0
			for i := range rec.Elements {
				el := &rec.Elements[i]
				if el.Size != width {
					continue
				}
				buf[pos] = uint8(el.ID)
				pos++
				putValue(buf[pos:], width, el.Value)
				pos += width
				written++
			}
			buf[countPos] = uint8(written)
		}
		return pos, nil
	}

	binary.BigEndian.PutUint16(buf[pos:], rec.EventID)
	binary.BigEndian.PutUint16(buf[pos+2:], uint16(len(rec.Elements)))
	pos += 4
	for width := 1; width <= 8; width *= 2 {
		countPos := pos
		pos += 2
		written := 0
		for i := range rec.Elements {
			el := &rec.Elements[i]
			if el.Variable || el.Size != width {
				continue
			}
			binary.BigEndian.PutUint16(buf[pos:], el.ID)
			pos += 2
			putValue(buf[pos:], width, el.Value)
			pos += width
			written++
		}
		binary.BigEndian.PutUint16(buf[countPos:], uint16(written))
	}

	nxCountPos := pos
	pos += 2
	nx := 0
	for i := range rec.Elements {
		el := &rec.Elements[i]
		if !el.Variable {
			continue
		}
		binary.BigEndian.PutUint16(buf[pos:], el.ID)
		binary.BigEndian.PutUint16(buf[pos+2:], uint16(len(el.Raw)))
		pos += 4
		copy(buf[pos:], el.Raw)
		pos += len(el.Raw)
		nx++
	}
	binary.BigEndian.PutUint16(buf[nxCountPos:], uint16(nx))
	return pos, nil
}

func putValue(buf []byte, width int, v uint64) {
	switch width {
	case 1:
		buf[0] = uint8(v)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(buf, v)
	}
}
