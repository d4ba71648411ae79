package model

import (
	"strings"
	"time"
)

// RW is the read/write access mode of a parameter.
type RW string

const (
	RWRead      RW = "R"
	RWWrite     RW = "W"
	RWReadWrite RW = "R/W"
	RWNone      RW = ""
)

// NormalizeRW upper-cases and trims an RW string to its canonical form.
func NormalizeRW(s string) RW {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch RW(s) {
	case RWRead, RWWrite, RWReadWrite:
		return RW(s)
	default:
		return RWNone
	}
}

// Codec identifies how a numeric value is encoded on the ZBC wire.
type Codec string

const (
	CodecU8     Codec = "u8"
	CodecU16LE  Codec = "u16le"
	CodecU32LE  Codec = "u32le"
	CodecI16LE  Codec = "i16le"
	CodecI32LE  Codec = "i32le"
	CodecF32LE  Codec = "f32le"
	CodecASCII  Codec = "ascii"
)

// DeviceMapping carries the per-protocol wiring for a parameter: the line
// key override, the ZBC message/command ids and value codec/scaling, and
// the Ultimate set/get command and variable names.
type DeviceMapping struct {
	LineKeyOverride string  `json:"line_key_override,omitempty"`
	ZBCMessageID    uint16  `json:"zbc_message_id,omitempty"`
	ZBCCommandID    uint16  `json:"zbc_command_id,omitempty"`
	ZBCCodec        Codec   `json:"zbc_codec,omitempty"`
	ZBCScale        float64 `json:"zbc_scale,omitempty"`
	ZBCOffset       float64 `json:"zbc_offset,omitempty"`
	UltimateSetCmd  string  `json:"ultimate_set_cmd,omitempty"`
	UltimateGetCmd  string  `json:"ultimate_get_cmd,omitempty"`
	UltimateVar     string  `json:"ultimate_var,omitempty"`
}

// DefaultZBCMessageID is used when a mapping does not specify one.
const DefaultZBCMessageID = 0x500A

// EffectiveZBCMessageID returns the configured message id or the protocol default.
func (m DeviceMapping) EffectiveZBCMessageID() uint16 {
	if m.ZBCMessageID == 0 {
		return DefaultZBCMessageID
	}
	return m.ZBCMessageID
}

// EffectiveZBCScale coerces a zero scale to 1, per spec.
func (m DeviceMapping) EffectiveZBCScale() float64 {
	if m.ZBCScale == 0 {
		return 1
	}
	return m.ZBCScale
}

// ParamMeta is the static metadata describing one parameter.
type ParamMeta struct {
	PKey    string         `json:"pkey"`
	PType   string         `json:"ptype"`
	PID     string         `json:"pid"`
	Min     *float64       `json:"min,omitempty"`
	Max     *float64       `json:"max,omitempty"`
	Default string         `json:"default"`
	Unit    string         `json:"unit,omitempty"`
	RW      RW             `json:"rw"`
	DType   string         `json:"dtype,omitempty"`
	Name    string         `json:"name,omitempty"`
	Mapping DeviceMapping  `json:"mapping"`
}

// ReadOnlyTypes are the device-sourced status ptypes the router never allows
// writes to, regardless of metadata RW.
var ReadOnlyTypes = map[string]bool{
	"TTE": true, "TTW": true,
	"LSE": true, "LSW": true,
	"MAE": true, "MAW": true,
}

// IsReadOnlyType reports whether ptype is one of the device-sourced status
// families that always reject writes.
func IsReadOnlyType(ptype string) bool {
	return ReadOnlyTypes[ptype]
}

// ParamValue is the current persisted value of a parameter.
type ParamValue struct {
	PKey      string    `json:"pkey"`
	Value     string    `json:"value"`
	UpdatedTS time.Time `json:"updated_ts"`
}

// PadWidths gives the zero-pad width of pid per ptype, per spec §3.
var PadWidths = map[string]int{
	"TTP": 5,
	"MAP": 4, "MAS": 4, "TTE": 4, "TTW": 4, "LSE": 4, "LSW": 4, "MAE": 4, "MAW": 4,
}
