package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/google/uuid"
	"github.com/tss-ch/mas004-databridge/internal/model"
)

func idKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

// Enqueue appends a durable outbound HTTP job and returns its idempotency
// key, generating one if the caller didn't supply it. X-Idempotency-Key and
// Content-Type are always set on the stored headers.
func (s *Store) Enqueue(method, url string, headers map[string]string, body json.RawMessage, idempotencyKey string) (string, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	h := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		h[k] = v
	}
	if _, ok := h["X-Idempotency-Key"]; !ok {
		h["X-Idempotency-Key"] = idempotencyKey
	}
	if _, ok := h["Content-Type"]; !ok {
		h["Content-Type"] = "application/json"
	}

	now := time.Now()
	job := model.OutboxJob{
		CreatedTS:      now,
		Method:         method,
		URL:            url,
		Headers:        h,
		Body:           body,
		IdempotencyKey: idempotencyKey,
		RetryCount:     0,
		NextAttemptTS:  now,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		job.ID = id
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put(idKey(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("enqueue outbox job: %w", err)
	}
	return idempotencyKey, nil
}

// NextDue returns the single oldest job whose next_attempt_ts has passed,
// ordered by (next_attempt_ts, retry_count, created_ts). Returns nil, nil
// when nothing is due.
func (s *Store) NextDue() (*model.OutboxJob, error) {
	var best *model.OutboxJob
	now := time.Now()

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketOutbox).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var job model.OutboxJob
			if err := json.Unmarshal(v, &job); err != nil {
				continue
			}
			if job.NextAttemptTS.After(now) {
				continue
			}
			if best == nil || lessDue(job, *best) {
				cp := job
				best = &cp
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan outbox: %w", err)
	}
	return best, nil
}

func lessDue(a, b model.OutboxJob) bool {
	if !a.NextAttemptTS.Equal(b.NextAttemptTS) {
		return a.NextAttemptTS.Before(b.NextAttemptTS)
	}
	if a.RetryCount != b.RetryCount {
		return a.RetryCount < b.RetryCount
	}
	return a.CreatedTS.Before(b.CreatedTS)
}

// DeleteOutbox removes a job, called on successful delivery.
func (s *Store) DeleteOutbox(id uint64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutbox).Delete(idKey(id))
	})
	if err != nil {
		return fmt.Errorf("delete outbox job %d: %w", id, err)
	}
	return nil
}

// Reschedule bumps a job's retry count and next-attempt timestamp after a
// failed delivery attempt.
func (s *Store) Reschedule(id uint64, retryCount int, nextAttempt time.Time) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		key := idKey(id)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("outbox job %d not found", id)
		}
		var job model.OutboxJob
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		job.RetryCount = retryCount
		job.NextAttemptTS = nextAttempt
		out, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
	if err != nil {
		return fmt.Errorf("reschedule outbox job %d: %w", id, err)
	}
	return nil
}

// Backoff computes the next retry delay: min(cap, base*2^min(retryCount,10)).
func Backoff(retryCount int, base, cap time.Duration) time.Duration {
	if retryCount > 10 {
		retryCount = 10
	}
	d := base << uint(retryCount)
	if d > cap || d <= 0 {
		return cap
	}
	return d
}

// CountOutbox reports the number of jobs awaiting delivery.
func (s *Store) CountOutbox() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketOutbox).Stats().KeyN
		return nil
	})
	return n, err
}
