package codec

import (
	"bytes"
	"testing"
)

func sampleRecord() AVLRecord {
	return AVLRecord{
		TimestampMs: 1704067200000, // 2024-01-01T00:00:00Z
		Priority:    PriorityHigh,
		GPS: GPSElement{
			Longitude:  260000000,
			Latitude:   440000000,
			Altitude:   100,
			Angle:      90,
			Satellites: 9,
			Speed:      50,
		},
		EventID: 239,
		Elements: []IOElement{
			{ID: 239, Size: 1, Value: 1},
			{ID: 21, Size: 1, Value: 4},
			{ID: 24, Size: 2, Value: 48},
			{ID: 16, Size: 4, Value: 123456},
		},
	}
}

func encodeOrFail(t *testing.T, pkt *DecodedPacket) []byte {
	t.Helper()
	frame, err := EncodePacket(pkt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return frame
}

func TestDecodeCodec8ERecord(t *testing.T) {
	rec := sampleRecord()
	rec.Elements = append(rec.Elements,
		IOElement{ID: 385, Size: 8, Value: 1<<60 + 7}) // above 2^53
	frame := encodeOrFail(t, &DecodedPacket{CodecID: Codec8E, Records: []AVLRecord{rec}})

	pkt, err := DecodePacket(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pkt.CodecID != Codec8E {
		t.Errorf("codec id = 0x%02x, want 0x8E", uint8(pkt.CodecID))
	}
	if pkt.NumberOfData1 != 1 || pkt.NumberOfData2 != 1 {
		t.Errorf("counts = %d/%d, want 1/1", pkt.NumberOfData1, pkt.NumberOfData2)
	}

	got := pkt.Records[0]
	if got.TimestampMs != 1704067200000 {
		t.Errorf("timestamp = %d", got.TimestampMs)
	}
	if got.Priority != PriorityHigh {
		t.Errorf("priority = %d", got.Priority)
	}
	if got.GPS.Latitude != 440000000 || got.GPS.Longitude != 260000000 {
		t.Errorf("coords = %d/%d", got.GPS.Latitude, got.GPS.Longitude)
	}
	if got.GPS.Satellites != 9 || got.GPS.Speed != 50 {
		t.Errorf("sat/speed = %d/%d", got.GPS.Satellites, got.GPS.Speed)
	}

	var odometer, big *IOElement
	for i := range got.Elements {
		switch got.Elements[i].ID {
		case 16:
			if odometer == nil {
				odometer = &got.Elements[i]
			}
		case 385:
			big = &got.Elements[i]
		}
	}
	if odometer == nil || odometer.Value != 123456 {
		t.Errorf("odometer element missing or wrong: %+v", odometer)
	}
	if big == nil || big.Value != 1<<60+7 {
		t.Errorf("8-byte element did not survive: %+v", big)
	}
}

func TestRoundTripCodec8(t *testing.T) {
	rec := sampleRecord()
	pkt := &DecodedPacket{CodecID: Codec8, Records: []AVLRecord{rec, rec}}

	frame := encodeOrFail(t, pkt)
	decoded, err := DecodePacket(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	frame2 := encodeOrFail(t, decoded)
	if !bytes.Equal(frame, frame2) {
		t.Errorf("round trip changed bytes:\n%x\n%x", frame, frame2)
	}
}

func TestRoundTripCodec8EWithNX(t *testing.T) {
	rec := sampleRecord()
	rec.Elements = append(rec.Elements,
		IOElement{ID: 256, Size: 17, Raw: []byte("WAUZZZ8V5KA123456"), Variable: true},
		IOElement{ID: 387, Size: 3, Raw: []byte{0xAA, 0xBB, 0xCC}, Variable: true},
	)
	pkt := &DecodedPacket{CodecID: Codec8E, Records: []AVLRecord{rec}}

	frame := encodeOrFail(t, pkt)
	decoded, err := DecodePacket(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	frame2 := encodeOrFail(t, decoded)
	if !bytes.Equal(frame, frame2) {
		t.Errorf("round trip changed bytes:\n%x\n%x", frame, frame2)
	}

	last := decoded.Records[0].Elements
	vin := last[len(last)-2]
	if !vin.Variable || string(vin.Raw) != "WAUZZZ8V5KA123456" {
		t.Errorf("vin element = %+v", vin)
	}
}

// Truncations at every length must produce a DecodeError, never a panic or a
// read past the slice.
func TestDecodeBoundedRead(t *testing.T) {
	frame := encodeOrFail(t, &DecodedPacket{CodecID: Codec8E, Records: []AVLRecord{sampleRecord()}})

	for n := 0; n < len(frame); n++ {
		if _, err := DecodePacket(frame[:n]); err == nil {
			t.Errorf("truncation to %d bytes decoded without error", n)
		}
	}
}

func TestDecodeCountMismatch(t *testing.T) {
	frame := encodeOrFail(t, &DecodedPacket{CodecID: Codec8, Records: []AVLRecord{{
		TimestampMs: 1704067200000,
		Priority:    PriorityLow,
	}}})
	// numberOfData2 sits right before the 4-byte CRC field.
	frame[len(frame)-5] ^= 0x01

	if _, err := DecodePacket(frame); err == nil {
		t.Fatal("count mismatch decoded without error")
	}
}

func TestDecodeRejectsBadPreamble(t *testing.T) {
	frame := encodeOrFail(t, &DecodedPacket{CodecID: Codec8, Records: []AVLRecord{sampleRecord()}})
	frame[0] = 0xFF
	if _, err := DecodePacket(frame); err == nil {
		t.Fatal("bad preamble decoded without error")
	}
}

func TestDecodeRejectsUnknownCodec(t *testing.T) {
	frame := encodeOrFail(t, &DecodedPacket{CodecID: Codec8, Records: []AVLRecord{sampleRecord()}})
	frame[8] = 0x10
	if _, err := DecodePacket(frame); err == nil {
		t.Fatal("unknown codec decoded without error")
	}
}

func TestFrameSize(t *testing.T) {
	frame := encodeOrFail(t, &DecodedPacket{CodecID: Codec8E, Records: []AVLRecord{sampleRecord()}})

	if n, err := FrameSize(frame[:4]); err != nil || n != 0 {
		t.Errorf("short buffer: n=%d err=%v", n, err)
	}
	n, err := FrameSize(frame)
	if err != nil {
		t.Fatalf("FrameSize: %v", err)
	}
	if n != len(frame) {
		t.Errorf("FrameSize = %d, want %d", n, len(frame))
	}
	if _, err := FrameSize([]byte{1, 2, 3, 4, 5, 6, 7, 8}); err == nil {
		t.Error("bad preamble accepted")
	}
}

func TestPayloadCRCMatchesEncoder(t *testing.T) {
	frame := encodeOrFail(t, &DecodedPacket{CodecID: Codec8, Records: []AVLRecord{sampleRecord()}})
	pkt, err := DecodePacket(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if uint32(PayloadCRC(frame)) != pkt.CRC {
		t.Errorf("payload crc %04x != declared %08x", PayloadCRC(frame), pkt.CRC)
	}
}

func TestCrc16IBMKnownVector(t *testing.T) {
	// Classic check value for CRC-16/ARC over "123456789".
	if got := Crc16IBM([]byte("123456789")); got != 0xBB3D {
		t.Errorf("crc = %04x, want bb3d", got)
	}
}

func TestCodec12RoundTrip(t *testing.T) {
	frame := BuildCodec12("getver")
	if !IsCodec12(frame) {
		t.Fatal("built frame not detected as codec 12")
	}
	// Flip command type to response so the parser accepts it.
	frame[10] = 0x06
	text, err := ParseCodec12Response(frame)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if text != "getver" {
		t.Errorf("text = %q", text)
	}
}
