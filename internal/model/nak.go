package model

import "fmt"

// NakKind is a member of the closed taxonomy of device-bridge/router
// failure kinds (spec §7). It is never allowed to escape as a Go error
// past the device bridge; it is always folded into a Reply.
type NakKind string

const (
	NakNone                NakKind = ""
	NakUnknownParam        NakKind = "NAK_UnknownParam"
	NakReadOnly            NakKind = "NAK_ReadOnly"
	NakOutOfRange          NakKind = "NAK_OutOfRange"
	NakBadRW               NakKind = "NAK_BadRW"
	NakMinGreaterThanMax   NakKind = "NAK_MinGreaterThanMax"
	NakDefaultOutOfRange   NakKind = "NAK_DefaultOutOfRange"
	NakDeviceDown          NakKind = "NAK_DeviceDown"
	NakDeviceBadResponse   NakKind = "NAK_DeviceBadResponse"
	NakDeviceRejected      NakKind = "NAK_DeviceRejected"
	NakDeviceComm          NakKind = "NAK_DeviceComm"
	NakMappingMissing      NakKind = "NAK_MappingMissing"
	NakUnknownDevice       NakKind = "NAK_UnknownDevice"
)

// NakZBC builds the ZBC-level error kind, e.g. NAK_ZBC_500D.
func NakZBC(code uint16) NakKind {
	return NakKind(fmt.Sprintf("NAK_ZBC_%04X", code))
}

// NakUltimate builds the Ultimate-level error kind, e.g. NAK_Ultimate_ERR_42.
func NakUltimate(code string) NakKind {
	return NakKind(fmt.Sprintf("NAK_Ultimate_%s", code))
}

// Reply is the sum type every device-bridge and router operation resolves
// to: either a successful value, or a tagged failure kind with optional
// detail. Modeled per the Design Notes' "exceptions for control flow"
// fix — no panics, no sentinel errors cross this boundary.
type Reply struct {
	PKey   string
	OK     bool
	Value  string
	Nak    NakKind
	Detail string
	Ack    bool // true for writes that should render "ACK_pkey=value"
}

// OKReply builds a successful read/write reply.
func OKReply(pkey, value string, ack bool) Reply {
	return Reply{PKey: pkey, OK: true, Value: value, Ack: ack}
}

// NakReply builds a failed reply.
func NakReply(pkey string, kind NakKind, detail string) Reply {
	return Reply{PKey: pkey, OK: false, Nak: kind, Detail: detail}
}

// Line renders the reply in the wire grammar the router emits:
//
//	pkey=value        (read)
//	ACK_pkey=value     (accepted write)
//	pkey=NAK_Kind      (any failure)
func (r Reply) Line() string {
	if !r.OK {
		return fmt.Sprintf("%s=%s", r.PKey, r.Nak)
	}
	if r.Ack {
		return fmt.Sprintf("ACK_%s=%s", r.PKey, r.Value)
	}
	return fmt.Sprintf("%s=%s", r.PKey, r.Value)
}
