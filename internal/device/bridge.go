// Package device implements the three protocol clients the bridge speaks
// to field hardware (line, ZBC-framed, Ultimate ASCII) and the dispatcher
// that routes a parsed parameter operation to the right one, falling back
// to local simulation against the parameter store when a device is in
// simulation mode or unreachable by design (the "raspi" pseudo-device).
package device

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tss-ch/mas004-databridge/internal/model"
	"github.com/tss-ch/mas004-databridge/internal/protocol"
	"github.com/tss-ch/mas004-databridge/internal/store"
	"github.com/tss-ch/mas004-databridge/internal/watchdog"
)

// Op mirrors protocol.Op to keep this package's public surface
// self-describing without importing the router's parse result type.
type Op = protocol.Op

// Bridge dispatches a parsed parameter operation to its live client, or to
// local simulation, and always resolves to a normalized reply line — never
// a Go error escaping to the router.
type Bridge struct {
	params *store.Store
	log    *slog.Logger

	plc      *LineClient
	plcSim   bool
	plcWD    *watchdog.Watchdog

	zbc    *ZBCClient
	zbcSim bool

	ultimate    *UltimateClient
	ultimateSim bool
}

// Clients groups the constructed protocol clients the bridge dispatches
// to, one per device family.
type Clients struct {
	PLC         *LineClient
	PLCSim      bool
	PLCWatchdog *watchdog.Watchdog

	ZBC    *ZBCClient
	ZBCSim bool

	Ultimate    *UltimateClient
	UltimateSim bool
}

// New builds a Bridge over the given parameter store and device clients.
func New(params *store.Store, clients Clients, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		params:      params,
		log:         log,
		plc:         clients.PLC,
		plcSim:      clients.PLCSim,
		plcWD:       clients.PLCWatchdog,
		zbc:         clients.ZBC,
		zbcSim:      clients.ZBCSim,
		ultimate:    clients.Ultimate,
		ultimateSim: clients.UltimateSim,
	}
}

// Execute runs the device-bridge policy of spec §4.9 and always returns a
// normalized reply line, e.g. "TTP00002=50" or "MAP0001=NAK_DeviceDown".
func (b *Bridge) Execute(device, pkey, ptype string, op protocol.Op, value string) string {
	ptype = strings.ToUpper(ptype)

	if model.IsReadOnlyType(ptype) && op == protocol.OpWrite {
		return model.NakReply(pkey, model.NakReadOnly, "").Line()
	}

	if device == "raspi" || b.isSimulation(device) {
		return b.simulate(pkey, op, value)
	}

	if op == protocol.OpWrite {
		if nak := b.preValidateWrite(pkey, value); nak != model.NakNone {
			return model.NakReply(pkey, nak, "").Line()
		}
	}

	var reply model.Reply
	switch device {
	case "esp-plc":
		reply = b.execLine(pkey, op, value)
	case "vj6530":
		reply = b.execZBC(pkey, op, value)
	case "vj3350":
		reply = b.execUltimate(pkey, op, value)
	default:
		reply = model.NakReply(pkey, model.NakUnknownDevice, "")
	}
	return reply.Line()
}

func (b *Bridge) isSimulation(device string) bool {
	switch device {
	case "esp-plc":
		return b.plcSim
	case "vj6530":
		return b.zbcSim
	case "vj3350":
		return b.ultimateSim
	default:
		return true
	}
}

func (b *Bridge) preValidateWrite(pkey, value string) model.NakKind {
	meta, err := b.params.GetMeta(pkey)
	if err != nil {
		b.log.Error("device bridge: read metadata failed", "pkey", pkey, "error", err)
		return model.NakDeviceComm
	}
	if meta == nil {
		return model.NakUnknownParam
	}
	if meta.RW == model.RWRead {
		return model.NakReadOnly
	}
	return model.NakNone
}

func (b *Bridge) simulate(pkey string, op protocol.Op, value string) string {
	if op == protocol.OpRead {
		meta, err := b.params.GetMeta(pkey)
		if err != nil || meta == nil {
			return model.NakReply(pkey, model.NakUnknownParam, "").Line()
		}
		eff, err := b.params.GetEffectiveValue(pkey)
		if err != nil {
			return model.NakReply(pkey, model.NakDeviceComm, "").Line()
		}
		return model.OKReply(pkey, eff, false).Line()
	}

	nak, err := b.params.SetValue(pkey, value)
	if err != nil {
		return model.NakReply(pkey, model.NakDeviceComm, "").Line()
	}
	if nak != model.NakNone {
		return model.NakReply(pkey, nak, "").Line()
	}
	return model.OKReply(pkey, value, true).Line()
}

func (b *Bridge) execLine(pkey string, op protocol.Op, value string) model.Reply {
	if b.plcWD != nil && !b.plcWD.Tick(context.Background()) {
		return model.NakReply(pkey, model.NakDeviceDown, "")
	}

	mapping, _, err := b.params.GetDeviceMap(pkey)
	if err != nil {
		b.log.Error("device bridge: device map lookup failed", "pkey", pkey, "error", err)
		return model.NakReply(pkey, model.NakDeviceComm, "")
	}
	key := mapping.LineKeyOverride
	if key == "" {
		key = pkey
	}

	rhs := "?"
	if op == protocol.OpWrite {
		rhs = value
	}
	line := key + "=" + rhs

	var response string
	var lastErr error
	for i := 0; i < 2; i++ {
		response, lastErr = b.plc.ExchangeLine(line)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		b.log.Error("device bridge: line exchange failed", "pkey", pkey, "error", lastErr)
		return model.NakReply(pkey, model.NakDeviceComm, "")
	}

	if op == protocol.OpRead {
		rhsVal, ok := protocol.ExtractLineRHS(response)
		if !ok {
			return model.NakReply(pkey, model.NakDeviceBadResponse, "")
		}
		if nak, err := b.params.ApplyDeviceValue(pkey, rhsVal); err != nil {
			return model.NakReply(pkey, model.NakDeviceComm, "")
		} else if nak != model.NakNone {
			return model.NakReply(pkey, nak, "")
		}
		return model.OKReply(pkey, rhsVal, false)
	}

	if strings.Contains(strings.ToUpper(response), "NAK") {
		return model.NakReply(pkey, model.NakDeviceRejected, "")
	}
	nak, err := b.params.SetValue(pkey, value)
	if err != nil {
		return model.NakReply(pkey, model.NakDeviceComm, "")
	}
	if nak != model.NakNone {
		return model.NakReply(pkey, nak, "")
	}
	return model.OKReply(pkey, value, true)
}

func (b *Bridge) execZBC(pkey string, op protocol.Op, value string) model.Reply {
	mapping, ok, err := b.params.GetDeviceMap(pkey)
	if err != nil {
		return model.NakReply(pkey, model.NakDeviceComm, "")
	}
	if !ok || mapping.ZBCCommandID == 0 {
		return model.NakReply(pkey, model.NakMappingMissing, "")
	}

	messageID := mapping.EffectiveZBCMessageID()
	codec := mapping.ZBCCodec
	if codec == "" {
		codec = model.CodecU16LE
	}
	scale := mapping.EffectiveZBCScale()
	offset := mapping.ZBCOffset

	cmdBuf := []byte{byte(mapping.ZBCCommandID), byte(mapping.ZBCCommandID >> 8)}
	body := cmdBuf
	if op == protocol.OpWrite {
		encoded, err := protocol.EncodeZBCValue(value, codec, scale, offset)
		if err != nil {
			return model.NakReply(pkey, model.NakDeviceComm, "")
		}
		body = append(body, encoded...)
	}

	respID, respBody, err := b.zbc.Transact(messageID, body)
	if err != nil {
		b.log.Error("device bridge: zbc transact failed", "pkey", pkey, "error", err)
		return model.NakReply(pkey, model.NakDeviceComm, "")
	}
	if respID == protocol.ZBCErrorMessageID {
		code := uint16(0xFFFF)
		if len(respBody) >= 2 {
			code = uint16(respBody[0]) | uint16(respBody[1])<<8
		}
		return model.NakReply(pkey, model.NakZBC(code), "")
	}

	if op == protocol.OpWrite {
		nak, err := b.params.SetValue(pkey, value)
		if err != nil {
			return model.NakReply(pkey, model.NakDeviceComm, "")
		}
		if nak != model.NakNone {
			return model.NakReply(pkey, nak, "")
		}
		return model.OKReply(pkey, value, true)
	}

	raw := respBody
	if len(raw) >= 2 && (uint16(raw[0])|uint16(raw[1])<<8) == mapping.ZBCCommandID {
		raw = raw[2:]
	}
	if len(raw) == 0 {
		return model.NakReply(pkey, model.NakDeviceBadResponse, "")
	}
	decoded, err := protocol.DecodeZBCValue(raw, codec, scale, offset)
	if err != nil {
		return model.NakReply(pkey, model.NakDeviceBadResponse, "")
	}
	if nak, err := b.params.ApplyDeviceValue(pkey, decoded); err != nil {
		return model.NakReply(pkey, model.NakDeviceComm, "")
	} else if nak != model.NakNone {
		return model.NakReply(pkey, nak, "")
	}
	return model.OKReply(pkey, decoded, false)
}

func (b *Bridge) execUltimate(pkey string, op protocol.Op, value string) model.Reply {
	mapping, _, err := b.params.GetDeviceMap(pkey)
	if err != nil {
		return model.NakReply(pkey, model.NakDeviceComm, "")
	}
	varName := mapping.UltimateVar
	if varName == "" {
		varName = pkey
	}
	setCmd := mapping.UltimateSetCmd
	if setCmd == "" {
		setCmd = "SetVars"
	}
	getCmd := mapping.UltimateGetCmd
	if getCmd == "" {
		getCmd = "GetVars"
	}

	if op == protocol.OpWrite {
		result, err := b.ultimate.Command(setCmd, varName, value)
		if err != nil {
			return model.NakReply(pkey, model.NakDeviceComm, "")
		}
		if !result.OK {
			code := result.ResultCode
			if code == "" {
				code = "FAIL"
			}
			return model.NakReply(pkey, model.NakUltimate(code), "")
		}
		nak, err := b.params.SetValue(pkey, value)
		if err != nil {
			return model.NakReply(pkey, model.NakDeviceComm, "")
		}
		if nak != model.NakNone {
			return model.NakReply(pkey, nak, "")
		}
		return model.OKReply(pkey, value, true)
	}

	result, err := b.ultimate.Command(getCmd, varName)
	if err != nil {
		return model.NakReply(pkey, model.NakDeviceComm, "")
	}
	if !result.OK {
		code := result.ResultCode
		if code == "" {
			code = "FAIL"
		}
		return model.NakReply(pkey, model.NakUltimate(code), "")
	}

	parsed, ok := protocol.ExtractUltimateValue(varName, result.Args)
	if !ok {
		return model.NakReply(pkey, model.NakDeviceBadResponse, "")
	}
	if nak, err := b.params.ApplyDeviceValue(pkey, parsed); err != nil {
		return model.NakReply(pkey, model.NakDeviceComm, "")
	} else if nak != model.NakNone {
		return model.NakReply(pkey, nak, "")
	}
	return model.OKReply(pkey, parsed, false)
}
