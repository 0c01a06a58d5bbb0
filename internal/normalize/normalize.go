// Package normalize maps decoded IO elements to the stable semantic field
// names the store and the analyzer work with.
package normalize

import (
	"encoding/hex"
	"fmt"
	"strings"

	"avl-gateway/internal/codec"
	"avl-gateway/internal/codec/fmxxx"
	"avl-gateway/internal/model"
)

const coordScale = 10000000.0

// Record builds a storable model.Record from one decoded AVL record.
func Record(imei string, rec *codec.AVLRecord) model.Record {
	out := model.Record{
		Imei:      imei,
		Timestamp: model.FormatTimestamp(rec.TimestampMs),
		Priority:  int(rec.Priority),
		GPS: model.GPS{
			Latitude:   float64(rec.GPS.Latitude) / coordScale,
			Longitude:  float64(rec.GPS.Longitude) / coordScale,
			Altitude:   int(int16(rec.GPS.Altitude)),
			Angle:      int(rec.GPS.Angle),
			Satellites: int(rec.GPS.Satellites),
			Speed:      int(rec.GPS.Speed),
		},
		IOElements: make([]model.IOElement, 0, len(rec.Elements)),
		Named:      make(map[string]interface{}, len(rec.Elements)),
	}

	for i := range rec.Elements {
		el := &rec.Elements[i]
		name, value := project(el)
		out.IOElements = append(out.IOElements, model.IOElement{
			ID:    el.ID,
			Name:  name,
			Value: value,
			Size:  el.Size,
		})
		// Emission order wins on duplicate ids; the first occurrence is the
		// event-triggering one.
		if _, seen := out.Named[name]; !seen {
			out.Named[name] = value
		}
	}
	return out
}

// project resolves one element to its semantic name and typed value.
func project(el *codec.IOElement) (string, interface{}) {
	name, known := fmxxx.Name(el.ID)
	if !known {
		name = fmt.Sprintf("IO_%d", el.ID)
	}

	if el.Variable {
		if fmxxx.ASCIIIds[el.ID] {
			return name, strings.TrimRight(string(el.Raw), "\x00")
		}
		return name, hex.EncodeToString(el.Raw)
	}

	if def, ok := fmxxx.Defs[el.ID]; ok && def.Signed {
		return name, signed16(el.Value)
	}

	// 8-byte values may exceed 2^53; keep them integral rather than routing
	// through float64.
	if el.Size == 8 {
		return name, el.Value
	}
	return name, int64(el.Value)
}

// signed16 reinterprets an unsigned group value as a signed 16-bit quantity:
// accelerometer axes transmit two's complement in the low 16 bits.
func signed16(v uint64) int64 {
	n := int64(v & 0xFFFF)
	if n > 32767 {
		n -= 65536
	}
	return n
}

// Vin extracts the VIN projection if the record carries one.
func Vin(rec *model.Record) (string, bool) {
	s, ok := rec.Str("vin")
	if !ok || len(s) != 17 {
		return "", false
	}
	return s, true
}
