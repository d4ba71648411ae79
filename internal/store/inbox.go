package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/tss-ch/mas004-databridge/internal/model"
)

// StoreInbound persists an incoming message, deduplicating on
// idempotency key. Returns true when the message is newly inserted, false
// when it is a replay of one already on file (the caller should ack it
// without reprocessing).
func (s *Store) StoreInbound(source string, headers map[string]string, body json.RawMessage, idempotencyKey string) (bool, error) {
	inserted := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		byKey := tx.Bucket(bucketInboxByKey)
		if idempotencyKey != "" {
			if byKey.Get([]byte(idempotencyKey)) != nil {
				return nil
			}
		}

		inbox := tx.Bucket(bucketInbox)
		id, err := inbox.NextSequence()
		if err != nil {
			return err
		}

		msg := model.InboxMessage{
			ID:             id,
			ReceivedTS:     time.Now(),
			Source:         source,
			Headers:        headers,
			Body:           body,
			IdempotencyKey: idempotencyKey,
			State:          model.InboxPending,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := inbox.Put(idKey(id), data); err != nil {
			return err
		}
		if idempotencyKey != "" {
			if err := byKey.Put([]byte(idempotencyKey), idKey(id)); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store inbound message: %w", err)
	}
	return inserted, nil
}

// ClaimNextPending flips the oldest pending message to processing and
// returns it. Returns nil, nil when the inbox is empty.
func (s *Store) ClaimNextPending() (*model.InboxMessage, error) {
	var claimed *model.InboxMessage
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketInbox)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg model.InboxMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if msg.State != model.InboxPending {
				continue
			}
			msg.State = model.InboxProcessing
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := b.Put(k, data); err != nil {
				return err
			}
			claimed = &msg
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim inbox message: %w", err)
	}
	return claimed, nil
}

// Ack marks a message done and removes it from the table.
func (s *Store) Ack(id uint64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketInbox)
		key := idKey(id)
		data := b.Get(key)
		if data == nil {
			return nil
		}
		var msg model.InboxMessage
		if err := json.Unmarshal(data, &msg); err == nil && msg.IdempotencyKey != "" {
			_ = tx.Bucket(bucketInboxByKey).Delete([]byte(msg.IdempotencyKey))
		}
		return b.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("ack inbox message %d: %w", id, err)
	}
	return nil
}

// Nack returns a claimed message to pending so it can be retried.
func (s *Store) Nack(id uint64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketInbox)
		key := idKey(id)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("inbox message %d not found", id)
		}
		var msg model.InboxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		msg.State = model.InboxPending
		out, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
	if err != nil {
		return fmt.Errorf("nack inbox message %d: %w", id, err)
	}
	return nil
}

// CountPending reports how many inbox messages are still awaiting a claim.
func (s *Store) CountPending() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketInbox).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg model.InboxMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if msg.State == model.InboxPending {
				n++
			}
		}
		return nil
	})
	return n, err
}
