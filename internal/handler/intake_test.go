package handler

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tss-ch/mas004-databridge/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIntakeHandler_JSONBodyStored(t *testing.T) {
	s := openTestStore(t)
	h := NewIntakeHandler(s, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/inbox", strings.NewReader(`{"msg":"TTP00002=?","source":"peer"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stored":true`)

	n, err := s.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntakeHandler_DuplicateIdempotencyKeyNotStoredTwice(t *testing.T) {
	s := openTestStore(t)
	h := NewIntakeHandler(s, "", nil)

	req1 := httptest.NewRequest(http.MethodPost, "/api/inbox", strings.NewReader(`"TTP00002=?"`))
	req1.Header.Set("X-Idempotency-Key", "dup-1")
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, req1)
	assert.Contains(t, w1.Body.String(), `"stored":true`)

	req2 := httptest.NewRequest(http.MethodPost, "/api/inbox", strings.NewReader(`"TTP00002=?"`))
	req2.Header.Set("X-Idempotency-Key", "dup-1")
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req2)
	assert.Contains(t, w2.Body.String(), `"stored":false`)

	n, err := s.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntakeHandler_WrongSharedSecretRejected(t *testing.T) {
	s := openTestStore(t)
	h := NewIntakeHandler(s, "topsecret", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/inbox", strings.NewReader(`"TTP00002=?"`))
	req.Header.Set("X-Shared-Secret", "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	n, err := s.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIntakeHandler_RawTextBodyStored(t *testing.T) {
	s := openTestStore(t)
	h := NewIntakeHandler(s, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/inbox", strings.NewReader("MAP0001=500"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	msg, err := s.ClaimNextPending()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, `"MAP0001=500"`, string(msg.Body))
}
