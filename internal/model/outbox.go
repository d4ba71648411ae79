package model

import (
	"encoding/json"
	"time"
)

// OutboxJob is one durable outbound HTTP job, per spec §3/§4.2.
type OutboxJob struct {
	ID             uint64            `json:"id"`
	CreatedTS      time.Time         `json:"created_ts"`
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers"`
	Body           json.RawMessage   `json:"body,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	RetryCount     int               `json:"retry_count"`
	NextAttemptTS  time.Time         `json:"next_attempt_ts"`
}
