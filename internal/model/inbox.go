package model

import (
	"encoding/json"
	"time"
)

// InboxState is the inbox message lifecycle state, per spec §3/§4.3.
type InboxState string

const (
	InboxPending    InboxState = "pending"
	InboxProcessing InboxState = "processing"
	InboxDone       InboxState = "done"
)

// InboxMessage is one durable incoming message.
type InboxMessage struct {
	ID             uint64            `json:"id"`
	ReceivedTS     time.Time         `json:"received_ts"`
	Source         string            `json:"source"`
	Headers        map[string]string `json:"headers"`
	Body           json.RawMessage   `json:"body,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	State          InboxState        `json:"state"`
}
