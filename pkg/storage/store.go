package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tandem-ha/tandem/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketState   = []byte("state")
	bucketJournal = []byte("journal")

	keyLastRole = []byte("last_role")
)

// Store persists controller state across process restarts: the last role
// this node held and a journal of every transition attempt.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store under dataDir
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tandem.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketState, bucketJournal} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRole records the role this node currently holds
func (s *Store) SaveRole(role types.Role) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put(keyLastRole, []byte(role))
	})
}

// LastRole returns the last persisted role, or "" if none was recorded
func (s *Store) LastRole() (types.Role, error) {
	var role types.Role
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketState).Get(keyLastRole); v != nil {
			role = types.Role(v)
		}
		return nil
	})
	return role, err
}

// AppendTransition adds a transition record to the journal. Keys are
// RFC3339Nano timestamps suffixed with the record ID so iteration order
// is chronological.
func (s *Store) AppendTransition(rec *types.TransitionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal transition record: %w", err)
	}

	key := []byte(rec.Timestamp.UTC().Format(time.RFC3339Nano) + "/" + rec.ID)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJournal).Put(key, data)
	})
}

// ListTransitions returns journal entries in chronological order,
// newest last. A limit of 0 returns everything.
func (s *Store) ListTransitions(limit int) ([]*types.TransitionRecord, error) {
	var records []*types.TransitionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec types.TransitionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal transition record: %w", err)
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
