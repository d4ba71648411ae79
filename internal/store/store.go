// Package store persists the bridge's outbox, inbox, and parameter tables
// in a single embedded bbolt database file. bbolt serializes every writer
// through one in-process transaction, which is the Go analogue of the
// write-ahead-logged, busy-timeout-guarded single-file database the system
// is specified against: there is structurally only ever one writer, so the
// inbox claim race never needs an explicit "BEGIN IMMEDIATE" equivalent.
package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var (
	installMu    sync.Mutex
	installed    = map[string]bool{}
)

// Bucket names — one per logical table.
var (
	bucketOutbox      = []byte("outbox")
	bucketInbox       = []byte("inbox")
	bucketInboxByKey  = []byte("inbox_by_key")
	bucketParamsMeta  = []byte("params_meta")
	bucketParamsValue = []byte("params_value")
	bucketDeviceMap   = []byte("params_device_map")
	bucketMeta        = []byte("meta")
)

var allBuckets = [][]byte{
	bucketOutbox, bucketInbox, bucketInboxByKey,
	bucketParamsMeta, bucketParamsValue, bucketDeviceMap, bucketMeta,
}

// Store wraps a bbolt database file holding the outbox, inbox, and
// parameter tables.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the database file at path and installs
// the schema. Schema install is idempotent and guarded process-wide by
// absolute path, so concurrent opens of the same file in one process never
// race the bucket creation.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.ensureBuckets(path); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBuckets(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	installMu.Lock()
	defer installMu.Unlock()
	if installed[abs] {
		return nil
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	installed[abs] = true
	return nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}
