package router

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tss-ch/mas004-databridge/internal/device"
	"github.com/tss-ch/mas004-databridge/internal/logstore"
	"github.com/tss-ch/mas004-databridge/internal/model"
	"github.com/tss-ch/mas004-databridge/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRouter_TickOnce_ReadsAndEnqueuesReply(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertMeta(model.ParamMeta{PKey: "ABC0001", PType: "ABC", PID: "0001", Default: "42", RW: model.RWReadWrite}))

	bridge := device.New(s, device.Clients{}, nil)
	logs := logstore.New(10, 0)
	r := New(s, bridge, logs, "https://peer.local", nil)

	inserted, err := s.StoreInbound("peer", nil, json.RawMessage(`{"msg":"ABC0001=?","source":"mikrotom"}`), "corr-1")
	require.NoError(t, err)
	require.True(t, inserted)

	ok := r.TickOnce()
	assert.True(t, ok)

	n, err := s.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	job, err := s.NextDue()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "https://peer.local/api/inbox", job.URL)
	assert.Equal(t, "corr-1", job.Headers["X-Correlation-Id"])

	var payload map[string]string
	require.NoError(t, json.Unmarshal(job.Body, &payload))
	assert.Equal(t, "ABC0001=42", payload["msg"])
	assert.Equal(t, "raspi", payload["source"])
}

func TestRouter_TickOnce_NoLineStillAcks(t *testing.T) {
	s := openTestStore(t)
	bridge := device.New(s, device.Clients{}, nil)
	logs := logstore.New(10, 0)
	r := New(s, bridge, logs, "https://peer.local", nil)

	inserted, err := s.StoreInbound("peer", nil, json.RawMessage(`{"other":"field"}`), "")
	require.NoError(t, err)
	require.True(t, inserted)

	ok := r.TickOnce()
	assert.True(t, ok)

	n, err := s.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// No reply should have been enqueued since no line could be extracted.
	job, err := s.NextDue()
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRouter_TickOnce_InvalidGrammarStillAcks(t *testing.T) {
	s := openTestStore(t)
	bridge := device.New(s, device.Clients{}, nil)
	logs := logstore.New(10, 0)
	r := New(s, bridge, logs, "https://peer.local", nil)

	_, err := s.StoreInbound("peer", nil, json.RawMessage(`"not a valid line"`), "")
	require.NoError(t, err)

	ok := r.TickOnce()
	assert.True(t, ok)

	n, err := s.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRouter_TickOnce_EmptyInboxReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	bridge := device.New(s, device.Clients{}, nil)
	logs := logstore.New(10, 0)
	r := New(s, bridge, logs, "https://peer.local", nil)

	assert.False(t, r.TickOnce())
}

func TestRouter_TickOnce_WriteReadOnlyType(t *testing.T) {
	s := openTestStore(t)
	bridge := device.New(s, device.Clients{}, nil)
	logs := logstore.New(10, 0)
	r := New(s, bridge, logs, "https://peer.local", nil)

	_, err := s.StoreInbound("peer", nil, json.RawMessage(`"TTE0001=5"`), "")
	require.NoError(t, err)

	ok := r.TickOnce()
	assert.True(t, ok)

	job, err := s.NextDue()
	require.NoError(t, err)
	require.NotNil(t, job)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(job.Body, &payload))
	assert.Equal(t, "TTE0001=NAK_ReadOnly", payload["msg"])
}
