package handler

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tss-ch/mas004-databridge/internal/model"
	"github.com/tss-ch/mas004-databridge/internal/store"
)

// maxIntakeBody caps the accepted request body, per spec §4.10.
const maxIntakeBody = 1 << 20

// IntakeHandler implements POST /api/inbox: the peer pushes a message,
// which lands in the durable inbox for the router to drain.
type IntakeHandler struct {
	store        *store.Store
	sharedSecret string
	log          *slog.Logger
}

// NewIntakeHandler builds an IntakeHandler. An empty sharedSecret disables
// the X-Shared-Secret check entirely.
func NewIntakeHandler(st *store.Store, sharedSecret string, log *slog.Logger) *IntakeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &IntakeHandler{store: st, sharedSecret: sharedSecret, log: log}
}

type intakeBody struct {
	Msg    string `json:"msg"`
	Source string `json:"source"`
}

type intakeResponse struct {
	OK             bool   `json:"ok"`
	Stored         bool   `json:"stored"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ServeHTTP handles POST /api/inbox.
func (h *IntakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.sharedSecret != "" {
		got := r.Header.Get("X-Shared-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.sharedSecret)) != 1 {
			WriteError(w, model.NewUnauthorizedError("shared secret mismatch"))
			return
		}
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIntakeBody+1))
	if err != nil {
		WriteError(w, model.NewBadRequestError("failed to read body"))
		return
	}
	if len(raw) > maxIntakeBody {
		WriteError(w, model.NewBadRequestError("body too large"))
		return
	}

	source := r.RemoteAddr
	var body json.RawMessage
	var parsed intakeBody
	if json.Unmarshal(raw, &parsed) == nil && parsed.Msg != "" {
		body = json.RawMessage(raw)
		if parsed.Source != "" {
			source = parsed.Source
		}
	} else {
		encoded, marshalErr := json.Marshal(string(raw))
		if marshalErr != nil {
			WriteError(w, model.NewBadRequestError("failed to encode body"))
			return
		}
		body = json.RawMessage(encoded)
	}

	idempotencyKey := r.Header.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = r.Header.Get("X-Correlation-Id")
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	headers := map[string]string{}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		headers["Content-Type"] = ct
	}

	stored, err := h.store.StoreInbound(source, headers, body, idempotencyKey)
	if err != nil {
		h.log.Error("intake: store failed", "error", err)
		WriteError(w, model.NewInternalError(""))
		return
	}

	WriteJSON(w, http.StatusOK, intakeResponse{OK: true, Stored: stored, IdempotencyKey: idempotencyKey})
}
