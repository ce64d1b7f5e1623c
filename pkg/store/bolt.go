package store

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketSettings = []byte("settings")
	bucketLog      = []byte("curation_log")
)

// BoltStore is the local durable key-value store. Session flags, interest
// configuration and the decision log all live in one file; it survives process
// restarts and is private to a single running instance.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSettings, bucketLog} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Get returns the raw value for a settings key, or found=false.
func (s *BoltStore) Get(key string) (value []byte, found bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get([]byte(key))
		if data == nil {
			return nil
		}
		value = make([]byte, len(data))
		copy(value, data)
		found = true
		return nil
	})
	return value, found, err
}

func (s *BoltStore) Put(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), value)
	})
}

func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete([]byte(key))
	})
}

// AppendLog appends one encoded entry under a monotonic sequence key and trims
// the oldest entries so the bucket never exceeds capacity.
func (s *BoltStore) AppendLog(value []byte, capacity int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLog)
		// Stats() reports committed state only, so count before writing.
		existing := b.Stats().KeyN

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := b.Put(key, value); err != nil {
			return err
		}

		c := b.Cursor()
		for excess := existing + 1 - capacity; excess > 0; excess-- {
			k, _ := c.First()
			if k == nil {
				break
			}
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanLog visits every log entry in append order.
func (s *BoltStore) ScanLog(fn func(value []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLog).ForEach(func(k, v []byte) error {
			return fn(v)
		})
	})
}

// LogCount returns the number of retained log entries.
func (s *BoltStore) LogCount() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketLog).Stats().KeyN
		return nil
	})
	return n, err
}

// ResetLog drops the whole decision history.
func (s *BoltStore) ResetLog() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketLog); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketLog)
		return err
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
