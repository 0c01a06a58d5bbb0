package model

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the canonical record timestamp form. Records are ordered
// by string comparison in the store, so the layout must sort chronologically.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders a device millisecond epoch as canonical UTC.
func FormatTimestamp(ms uint64) string {
	return time.UnixMilli(int64(ms)).UTC().Format(TimestampLayout)
}

// GPS is the positional part of every record. Latitude and longitude are
// already divided by 1e7; Speed is the GPS speed in km/h, distinct from the
// OBD vehicle speed carried as an IO element.
type GPS struct {
	Latitude   float64 `bson:"latitude" json:"latitude"`
	Longitude  float64 `bson:"longitude" json:"longitude"`
	Altitude   int     `bson:"altitude" json:"altitude"`
	Angle      int     `bson:"angle" json:"angle"`
	Satellites int     `bson:"satellites" json:"satellites"`
	Speed      int     `bson:"speed" json:"speed"`
}

// IOElement is one decoded key-value pair, in emission order. Value is an
// int64/uint64 for fixed-width elements and a string (ASCII or hex) for
// variable-length ones.
type IOElement struct {
	ID    uint16      `bson:"id" json:"id"`
	Name  string      `bson:"name" json:"name"`
	Value interface{} `bson:"value" json:"value"`
	Size  int         `bson:"size" json:"size"`
}

// RawFrame captures the bytes of one accepted AVL frame for forensics.
type RawFrame struct {
	Imei      string    `bson:"imei" json:"imei"`
	Vin       string    `bson:"vin,omitempty" json:"vin,omitempty"`
	ModemType string    `bson:"modemType" json:"modemType"`
	RawHex    string    `bson:"rawHex" json:"rawHex"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Record is one normalized AVL sample. Named holds the semantic projections
// of known IO ids (ignition, totalOdometer, obdEngineRpm, ...) and is stored
// inline, so the Mongo document carries them as top-level fields.
type Record struct {
	Imei       string                 `bson:"imei" json:"imei"`
	Timestamp  string                 `bson:"timestamp" json:"timestamp"`
	Priority   int                    `bson:"priority" json:"priority"`
	GPS        GPS                    `bson:"gps" json:"gps"`
	IOElements []IOElement            `bson:"ioElements" json:"ioElements"`
	Named      map[string]interface{} `bson:",inline" json:"-"`
}

// MarshalJSON flattens Named into the top-level object, mirroring the
// stored document shape.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Named)+5)
	for k, v := range r.Named {
		out[k] = v
	}
	out["imei"] = r.Imei
	out["timestamp"] = r.Timestamp
	out["priority"] = r.Priority
	out["gps"] = r.GPS
	out["ioElements"] = r.IOElements
	return json.Marshal(out)
}

// Time parses the record timestamp. The zero time is returned for records
// that predate the canonical layout.
func (r *Record) Time() time.Time {
	t, err := time.Parse(TimestampLayout, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Num returns a named projection as float64. BSON decoding may hand back any
// of the integer widths, so all numeric kinds are accepted.
func (r *Record) Num(name string) (float64, bool) {
	v, ok := r.Named[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Int is Num truncated to int64.
func (r *Record) Int(name string) (int64, bool) {
	f, ok := r.Num(name)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Str returns a named projection as a string (VIN and other ASCII elements).
func (r *Record) Str(name string) (string, bool) {
	v, ok := r.Named[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
