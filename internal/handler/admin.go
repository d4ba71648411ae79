package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tss-ch/mas004-databridge/internal/logstore"
	"github.com/tss-ch/mas004-databridge/internal/model"
	"github.com/tss-ch/mas004-databridge/internal/store"
)

// AdminHandler implements the operator-facing inbox/outbox/params/logs
// endpoints, all gated by middleware.AdminToken.
type AdminHandler struct {
	store *store.Store
	logs  *logstore.Store
	log   *slog.Logger
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(st *store.Store, logs *logstore.Store, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{store: st, logs: logs, log: log}
}

// InboxNext handles GET /api/inbox/next: claims the oldest pending message
// (flipping it to processing) and hands it to the operator, the same
// admin-drain semantics as the router's own claim step.
func (h *AdminHandler) InboxNext(w http.ResponseWriter, r *http.Request) {
	msg, err := h.store.ClaimNextPending()
	if err != nil {
		h.log.Error("admin: claim failed", "error", err)
		WriteError(w, model.NewInternalError(""))
		return
	}
	if msg == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"message": nil})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// InboxAck handles POST /api/inbox/{id}/ack.
func (h *AdminHandler) InboxAck(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteError(w, model.NewBadRequestError("invalid id"))
		return
	}
	if err := h.store.Ack(id); err != nil {
		WriteError(w, model.NewInternalError(""))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type enqueueRequest struct {
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers"`
	Body           json.RawMessage   `json:"body"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// OutboxEnqueue handles POST /api/outbox/enqueue: an operator-driven
// shortcut into the same durable outbox the sender loop drains.
func (h *AdminHandler) OutboxEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid body"))
		return
	}

	target := req.URL
	if target == "" {
		target = req.Path
	}
	if target == "" || req.Method == "" {
		WriteError(w, model.NewBadRequestError("method and path|url are required"))
		return
	}

	id, err := h.store.Enqueue(strings.ToUpper(req.Method), target, req.Headers, req.Body, req.IdempotencyKey)
	if err != nil {
		h.log.Error("admin: enqueue failed", "error", err)
		WriteError(w, model.NewInternalError(""))
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"idempotency_key": id})
}

// LogsChannel handles GET /api/logs/{channel}: the most recent entries
// from that channel's in-memory ring buffer, newest last. channel="all"
// merges every channel.
func (h *AdminHandler) LogsChannel(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	n := 200
	if q := r.URL.Query().Get("n"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			n = parsed
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"channel": channel, "entries": h.logs.Recent(channel, n)})
}

// ParamsList handles GET /api/params: metadata for every parameter,
// optionally filtered by ptype and a name/pkey substring.
func (h *AdminHandler) ParamsList(w http.ResponseWriter, r *http.Request) {
	params, err := h.store.ListParams(r.URL.Query().Get("ptype"), r.URL.Query().Get("q"))
	if err != nil {
		h.log.Error("admin: list params failed", "error", err)
		WriteError(w, model.NewInternalError(""))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"params": params})
}

type setValueRequest struct {
	Value string `json:"value"`
}

// ParamSetValue handles POST /api/params/{pkey}/value: an operator-driven
// write through store.SetValue, subject to the same unknown-pkey, RW and
// range checks as a write arriving from the peer.
func (h *AdminHandler) ParamSetValue(w http.ResponseWriter, r *http.Request) {
	pkey := r.PathValue("pkey")
	var req setValueRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid body"))
		return
	}

	nak, err := h.store.SetValue(pkey, req.Value)
	if err != nil {
		h.log.Error("admin: set value failed", "pkey", pkey, "error", err)
		WriteError(w, model.NewInternalError(""))
		return
	}
	if nak != model.NakNone {
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "nak": nak})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
