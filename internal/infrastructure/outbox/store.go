package outbox

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var errMissingTopic = errors.New("outbox item has no topic")

// Store spools envelopes the gateway refused or could not be reached for,
// in a single bbolt bucket ordered by Item.key.
type Store struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

// Open creates the file and its parent directory when missing.
func Open(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = "outbox"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, bucket: []byte(bucket), now: time.Now}, nil
}

func (s *Store) update(fn func(b *bolt.Bucket) error) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error { return fn(tx.Bucket(s.bucket)) })
}

func (s *Store) view(fn func(b *bolt.Bucket) error) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.View(func(tx *bolt.Tx) error { return fn(tx.Bucket(s.bucket)) })
}

func put(b *bolt.Bucket, item Item) error {
	value, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return b.Put(item.key(), value)
}

// Put spools one item. Missing ID, priority and times are filled in.
func (s *Store) Put(item Item) error {
	if item.Topic == "" {
		return errMissingTopic
	}
	return s.update(func(b *bolt.Bucket) error {
		item.prepare(s.now())
		return put(b, item)
	})
}

// Peek returns up to limit items in drain order without removing them.
// Entries that no longer decode are skipped.
func (s *Store) Peek(limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []Item
	err := s.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if json.Unmarshal(v, &item) == nil {
				items = append(items, item)
			}
		}
		return nil
	})
	return items, err
}

// Ack removes a delivered or abandoned item.
func (s *Store) Ack(item Item) error {
	return s.update(func(b *bolt.Bucket) error {
		return b.Delete(item.key())
	})
}

// Retry counts a failed attempt and moves the item to the back of its band
// in one transaction. It returns the updated item.
func (s *Store) Retry(item Item) (Item, error) {
	err := s.update(func(b *bolt.Bucket) error {
		if err := b.Delete(item.key()); err != nil {
			return err
		}
		item.Attempts++
		item.QueuedAt = s.now()
		return put(b, item)
	})
	return item, err
}

// Size returns the number of spooled items.
func (s *Store) Size() (int, error) {
	var n int
	err := s.view(func(b *bolt.Bucket) error {
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Expire drops items first spooled before cutoff and reports how many went.
func (s *Store) Expire(cutoff time.Time) (int, error) {
	var removed int
	err := s.update(func(b *bolt.Bucket) error {
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var item Item
			if json.Unmarshal(v, &item) == nil && item.SpooledAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
