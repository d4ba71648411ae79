// Package protocol implements the wire-level codecs the bridge normalizes
// every device conversation through: the parameter-grammar line format, the
// ZBC binary frame, and the Ultimate semicolon-ASCII command/response.
package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tss-ch/mas004-databridge/internal/model"
)

// lineRx matches the router's incoming grammar: ptype, pid, and either a
// literal value or a bare "?" for a read.
var lineRx = regexp.MustCompile(`^([A-Za-z]{3})([0-9A-Za-z_]+)\s*=\s*(\?|[^=\s]+)$`)

// Op is the operation a parsed line requests.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// ParsedLine is a decoded router input line.
type ParsedLine struct {
	PType string
	PID   string
	PKey  string
	Op    Op
	Value string
}

// ParseLine decodes a line against the parameter grammar
// ^([A-Za-z]{3})([0-9A-Za-z_]+)\s*=\s*(\?|[^=\s]+)$. It returns false if the
// line does not match.
func ParseLine(s string) (ParsedLine, bool) {
	s = strings.TrimSpace(s)
	m := lineRx.FindStringSubmatch(s)
	if m == nil {
		return ParsedLine{}, false
	}
	ptype := strings.ToUpper(m[1])
	pid := NormalizePID(ptype, m[2])
	rhs := m[3]

	pl := ParsedLine{
		PType: ptype,
		PID:   pid,
		PKey:  ptype + pid,
		Value: rhs,
	}
	if rhs == "?" {
		pl.Op = OpRead
	} else {
		pl.Op = OpWrite
	}
	return pl, true
}

// NormalizePID zero-pads a numeric pid to the canonical width for ptype; a
// non-numeric pid is left as-is (padded to the same width when shorter).
func NormalizePID(ptype, pid string) string {
	width, ok := model.PadWidths[strings.ToUpper(ptype)]
	if !ok {
		width = 4
		if len(pid) > width {
			width = len(pid)
		}
	}
	if n, err := strconv.Atoi(pid); err == nil {
		return fmt.Sprintf("%0*d", width, n)
	}
	if len(pid) < width {
		return strings.Repeat("0", width-len(pid)) + pid
	}
	return pid
}

// CanonicalPKey builds the canonical pkey from a ptype/pid pair.
func CanonicalPKey(ptype, pid string) string {
	ptype = strings.ToUpper(ptype)
	return ptype + NormalizePID(ptype, pid)
}

// BuildValue renders a plain "pkey=value" line.
func BuildValue(ptype, pid, value string) string {
	return fmt.Sprintf("%s=%s", CanonicalPKey(ptype, pid), value)
}

// BuildAck renders an "ACK_pkey=value" line.
func BuildAck(ptype, pid, value string) string {
	return fmt.Sprintf("ACK_%s=%s", CanonicalPKey(ptype, pid), value)
}

// DeviceForPType picks the routing target from a parameter type's prefix.
func DeviceForPType(ptype string) string {
	switch {
	case strings.HasPrefix(ptype, "TT"):
		return "vj6530"
	case strings.HasPrefix(ptype, "LS"):
		return "vj3350"
	case strings.HasPrefix(ptype, "MA"):
		return "esp-plc"
	default:
		return "raspi"
	}
}
