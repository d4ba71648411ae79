package store

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tss-ch/mas004-databridge/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOutbox_EnqueueAndNextDue(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Enqueue("POST", "https://peer.local/api/inbox", nil, json.RawMessage(`{"msg":"TTP00002=50"}`), "")
	require.NoError(t, err)

	job, err := s.NextDue()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "POST", job.Method)
	assert.NotEmpty(t, job.Headers["X-Idempotency-Key"])
	assert.Equal(t, "application/json", job.Headers["Content-Type"])

	require.NoError(t, s.DeleteOutbox(job.ID))
	job2, err := s.NextDue()
	require.NoError(t, err)
	assert.Nil(t, job2)
}

func TestOutbox_RescheduleDelaysNextDue(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Enqueue("POST", "https://peer.local/api/inbox", nil, nil, "k1")
	require.NoError(t, err)

	job, err := s.NextDue()
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, s.Reschedule(job.ID, 1, time.Now().Add(time.Hour)))
	due, err := s.NextDue()
	require.NoError(t, err)
	assert.Nil(t, due)
}

func TestBackoff_Monotonic(t *testing.T) {
	// Property 7: backoff(n+1) >= backoff(n), backoff(n) <= cap, backoff(0) = base.
	base, cap := time.Second, 60*time.Second
	assert.Equal(t, base, Backoff(0, base, cap))

	prev := Backoff(0, base, cap)
	for n := 1; n <= 20; n++ {
		cur := Backoff(n, base, cap)
		assert.GreaterOrEqual(t, cur, prev)
		assert.LessOrEqual(t, cur, cap)
		prev = cur
	}
}

func TestInbox_IdempotentStore(t *testing.T) {
	// Property 1: duplicate store() calls sharing an idempotency key leave
	// exactly one row in the inbox and don't increase count_pending.
	s := openTestStore(t)

	inserted, err := s.StoreInbound("peer", nil, json.RawMessage(`"TTP00002=?"`), "idem-1")
	require.NoError(t, err)
	assert.True(t, inserted)

	for i := 0; i < 5; i++ {
		inserted, err := s.StoreInbound("peer", nil, json.RawMessage(`"TTP00002=?"`), "idem-1")
		require.NoError(t, err)
		assert.False(t, inserted)
	}

	n, err := s.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInbox_ExactlyOnceClaim(t *testing.T) {
	// Property 2: concurrent claim_next_pending() calls return disjoint ids.
	s := openTestStore(t)
	for i := 0; i < 20; i++ {
		_, err := s.StoreInbound("peer", nil, nil, "")
		require.NoError(t, err)
	}

	var mu sync.Mutex
	seen := map[uint64]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := s.ClaimNextPending()
			if err != nil || msg == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[msg.ID], "id %d claimed twice", msg.ID)
			seen[msg.ID] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)

	msg, err := s.ClaimNextPending()
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestInbox_AckRemovesMessageAndKey(t *testing.T) {
	s := openTestStore(t)
	_, err := s.StoreInbound("peer", nil, nil, "idem-ack")
	require.NoError(t, err)

	msg, err := s.ClaimNextPending()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, s.Ack(msg.ID))

	inserted, err := s.StoreInbound("peer", nil, nil, "idem-ack")
	require.NoError(t, err)
	assert.True(t, inserted, "idempotency key must be free again after ack")
}

func TestInbox_NackReturnsToPending(t *testing.T) {
	s := openTestStore(t)
	_, err := s.StoreInbound("peer", nil, nil, "")
	require.NoError(t, err)

	msg, err := s.ClaimNextPending()
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.NoError(t, s.Nack(msg.ID))
	n, err := s.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func float64p(f float64) *float64 { return &f }

func TestParams_RangeValidation(t *testing.T) {
	// Property 9: writes outside [min, max] are rejected; boundaries accepted.
	s := openTestStore(t)
	require.NoError(t, s.UpsertMeta(model.ParamMeta{
		PKey: "MAP0001", PType: "MAP", PID: "0001",
		Min: float64p(0), Max: float64p(100), Default: "50", RW: model.RWReadWrite,
	}))

	nak, err := s.SetValue("MAP0001", "150")
	require.NoError(t, err)
	assert.Equal(t, model.NakOutOfRange, nak)

	nak, err = s.SetValue("MAP0001", "-1")
	require.NoError(t, err)
	assert.Equal(t, model.NakOutOfRange, nak)

	nak, err = s.SetValue("MAP0001", "0")
	require.NoError(t, err)
	assert.Equal(t, model.NakNone, nak)

	nak, err = s.SetValue("MAP0001", "100")
	require.NoError(t, err)
	assert.Equal(t, model.NakNone, nak)
}

func TestParams_ReadOnlyEnforcement(t *testing.T) {
	// Property 10: writes to TTE/TTW/LSE/LSW/MAE/MAW always NAK_ReadOnly.
	s := openTestStore(t)
	for _, ptype := range []string{"TTE", "TTW", "LSE", "LSW", "MAE", "MAW"} {
		pkey := ptype + "0001"
		require.NoError(t, s.UpsertMeta(model.ParamMeta{
			PKey: pkey, PType: ptype, PID: "0001", Default: "0", RW: model.RWReadWrite,
		}))
		nak, err := s.SetValue(pkey, "1")
		require.NoError(t, err)
		assert.Equal(t, model.NakReadOnly, nak, "ptype %s", ptype)
	}
}

func TestParams_UnknownPKeyRejected(t *testing.T) {
	s := openTestStore(t)
	nak, err := s.SetValue("XXX9999", "1")
	require.NoError(t, err)
	assert.Equal(t, model.NakUnknownParam, nak)
}

func TestParams_EffectiveValueFallsBackToDefault(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertMeta(model.ParamMeta{PKey: "TTP00002", PType: "TTP", PID: "00002", Default: "50"}))

	v, err := s.GetEffectiveValue("TTP00002")
	require.NoError(t, err)
	assert.Equal(t, "50", v)

	_, err = s.SetValue("TTP00002", "60")
	require.NoError(t, err)
	v, err = s.GetEffectiveValue("TTP00002")
	require.NoError(t, err)
	assert.Equal(t, "60", v)
}

func TestParams_ApplyDeviceValueBypassesRW(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertMeta(model.ParamMeta{PKey: "TTE0001", PType: "TTE", PID: "0001", Default: "0"}))

	nak, err := s.ApplyDeviceValue("TTE0001", "E_NONE")
	require.NoError(t, err)
	assert.Equal(t, model.NakNone, nak)

	v, ok, err := s.GetValue("TTE0001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "E_NONE", v)
}

func TestParams_UpdateMeta_MinGreaterThanMaxRejected(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertMeta(model.ParamMeta{PKey: "MAP0002", PType: "MAP", PID: "0002", Default: "5"}))

	nak, err := s.UpdateMeta("MAP0002", nil, float64p(10), float64p(5), nil)
	require.NoError(t, err)
	assert.Equal(t, model.NakMinGreaterThanMax, nak)
}

func TestParams_UpdateMeta_DefaultOutOfRangeRejected(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertMeta(model.ParamMeta{PKey: "MAP0003", PType: "MAP", PID: "0003", Default: "5"}))

	bad := "500"
	nak, err := s.UpdateMeta("MAP0003", &bad, float64p(0), float64p(100), nil)
	require.NoError(t, err)
	assert.Equal(t, model.NakDefaultOutOfRange, nak)
}
