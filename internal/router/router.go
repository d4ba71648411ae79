// Package router drains the durable inbox, decodes the parameter-grammar
// line from each message, dispatches it to the device bridge, and relays
// the normalized reply back to the peer's inbox endpoint via the outbox.
// Any failure while handling a message is logged and the message is still
// acked — a deliberate policy so a single malformed or poison message can
// never block the queue.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tss-ch/mas004-databridge/internal/device"
	"github.com/tss-ch/mas004-databridge/internal/logstore"
	"github.com/tss-ch/mas004-databridge/internal/protocol"
	"github.com/tss-ch/mas004-databridge/internal/store"
)

// Router owns the inbox-drain loop's single tick.
type Router struct {
	store       *store.Store
	bridge      *device.Bridge
	logs        *logstore.Store
	peerBaseURL string
	log         *slog.Logger
}

// New builds a Router. peerBaseURL is the peer's base URL; replies are
// enqueued to peerBaseURL + "/api/inbox".
func New(st *store.Store, bridge *device.Bridge, logs *logstore.Store, peerBaseURL string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{store: st, bridge: bridge, logs: logs, peerBaseURL: strings.TrimRight(peerBaseURL, "/"), log: log}
}

// TickOnce claims and processes at most one pending inbox message. It
// reports whether a message was found, so the caller's loop knows whether
// to poll again immediately or back off.
func (r *Router) TickOnce() bool {
	msg, err := r.store.ClaimNextPending()
	if err != nil {
		r.log.Error("router: claim failed", "error", err)
		return false
	}
	if msg == nil {
		return false
	}

	defer func() {
		if ackErr := r.store.Ack(msg.ID); ackErr != nil {
			r.log.Error("router: ack failed", "id", msg.ID, "error", ackErr)
		}
	}()

	line, ok := extractLine(msg.Body)
	if !ok {
		r.log.Info("router: message has no usable line, ignored", "id", msg.ID)
		return true
	}

	r.handleLine(line, msg.IdempotencyKey)
	return true
}

// extractLine implements spec §4.7 step 2: a JSON string body is used
// directly; a JSON object's first non-empty of msg/line/text/cmd is used;
// anything else is treated as plain text.
func extractLine(body json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", false
	}

	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if asString == "" {
			return "", false
		}
		return asString, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"msg", "line", "text", "cmd"} {
			raw, present := obj[key]
			if !present {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
		return "", false
	}

	return trimmed, true
}

func (r *Router) handleLine(line, correlationID string) {
	parsed, ok := protocol.ParseLine(line)
	if !ok {
		r.log.Warn("router: line did not match parameter grammar", "line", line)
		return
	}

	dev := protocol.DeviceForPType(parsed.PType)
	r.logs.Append("raspi", "in", fmt.Sprintf("peer: %s", line))
	r.logs.Append(dev, "in", fmt.Sprintf("raspi-> %s: %s", dev, line))

	reply := r.bridge.Execute(dev, parsed.PKey, parsed.PType, parsed.Op, parsed.Value)

	r.logs.Append(dev, "out", fmt.Sprintf("%s->raspi: %s", dev, reply))
	r.logs.Append("raspi", "out", fmt.Sprintf("to peer: %s", reply))

	r.enqueueReply(reply, correlationID)
}

func (r *Router) enqueueReply(line, correlationID string) {
	body, err := json.Marshal(map[string]string{"msg": line, "source": "raspi"})
	if err != nil {
		r.log.Error("router: marshal reply failed", "error", err)
		return
	}

	headers := map[string]string{}
	if correlationID != "" {
		headers["X-Correlation-Id"] = correlationID
	}

	url := r.peerBaseURL + "/api/inbox"
	if _, err := r.store.Enqueue("POST", url, headers, body, ""); err != nil {
		r.log.Error("router: enqueue reply failed", "error", err)
	}
}
