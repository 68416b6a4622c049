package clusterconfig

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAssignments = []byte("slot_assignments")
	bucketMigrations  = []byte("slot_migrations")
)

// Store persists the slot→node map and pending migrations, grounded on
// pkg/storage/boltdb.go's BoltStore: one bucket per record kind, JSON
// values, keyed by the slot range's start so iteration returns ranges in
// slot order.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if necessary) a bbolt database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "clusterconfig.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open clusterconfig store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketAssignments, bucketMigrations} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
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

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func slotKey(start uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, start)
	return buf
}

// PutAssignment upserts a slot range's owning node.
func (s *Store) PutAssignment(a Assignment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAssignments).Put(slotKey(a.Range.Start), data)
	})
}

// DeleteAssignment removes the assignment starting at start, if any.
func (s *Store) DeleteAssignment(start uint16) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAssignments).Delete(slotKey(start))
	})
}

// ListAssignments returns every assignment, ordered by range start.
func (s *Store) ListAssignments() ([]Assignment, error) {
	var out []Assignment
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAssignments).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var a Assignment
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// PutMigration upserts a pending migration by its range start.
func (s *Store) PutMigration(m Migration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMigrations).Put(slotKey(m.Range.Start), data)
	})
}

// DeleteMigration removes a migration once it finishes.
func (s *Store) DeleteMigration(start uint16) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMigrations).Delete(slotKey(start))
	})
}

// ListMigrations returns every pending migration, ordered by range start.
func (s *Store) ListMigrations() ([]Migration, error) {
	var out []Migration
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMigrations).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m Migration
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}
