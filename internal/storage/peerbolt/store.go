package peerbolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bPeers  = "peers_by_addr"
	bBySeen = "peers_by_seen"

	defaultTO = 2 * time.Second
)

// Record is what the book remembers about one peer address.
type Record struct {
	Addr        string    `json:"addr"`
	Inbound     bool      `json:"inbound"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Connects    int       `json:"connects"`
	Disconnects int       `json:"disconnects"`
}

// Store is a BoltDB-backed book of peers this node has linked with.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) a BoltDB database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bPeers)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bBySeen)); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// NoteConnected records a link to addr.
func (s *Store) NoteConnected(addr string, inbound bool) error {
	return s.update(addr, func(r *Record) {
		r.Connects++
		r.Inbound = inbound
	})
}

// NoteDisconnected records the end of a link to addr.
func (s *Store) NoteDisconnected(addr string) error {
	return s.update(addr, func(r *Record) {
		r.Disconnects++
	})
}

func (s *Store) update(addr string, fn func(r *Record)) error {
	if addr == "" {
		return errors.New("missing peer addr")
	}
	now := s.now()

	return s.db.Update(func(tx *bolt.Tx) error {
		peers := tx.Bucket([]byte(bPeers))
		bySeen := tx.Bucket([]byte(bBySeen))

		r := Record{Addr: addr, FirstSeen: now}
		if raw := peers.Get([]byte(addr)); raw != nil {
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			if err := bySeen.Delete(seenKey(r.LastSeen, addr)); err != nil {
				return err
			}
		}

		fn(&r)
		r.LastSeen = now

		val, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := peers.Put([]byte(addr), val); err != nil {
			return err
		}
		return bySeen.Put(seenKey(r.LastSeen, addr), nil)
	})
}

// Get returns the record for addr, if any.
func (s *Store) Get(addr string) (Record, bool, error) {
	var (
		r     Record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bPeers)).Get([]byte(addr))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &r)
	})
	return r, found, err
}

// Recent returns up to limit records, most recently seen first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	out := make([]Record, 0, min(limit, 64))
	err := s.scan(func(r Record) bool {
		out = append(out, r)
		return len(out) < limit
	})
	return out, err
}

// Dialable returns up to limit addresses this node dialed itself, most
// recent first; limit <= 0 returns all of them. Inbound addresses carry the
// remote's ephemeral port and cannot be dialed back.
func (s *Store) Dialable(limit int) ([]string, error) {
	var out []string
	err := s.scan(func(r Record) bool {
		if !r.Inbound {
			out = append(out, r.Addr)
		}
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// scan walks records newest first until fn returns false.
func (s *Store) scan(fn func(Record) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		peers := tx.Bucket([]byte(bPeers))
		c := tx.Bucket([]byte(bBySeen)).Cursor()

		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			_, addr := splitSeenKey(k)
			if addr == "" {
				continue
			}
			raw := peers.Get([]byte(addr))
			if raw == nil {
				continue
			}
			var r Record
			if err := json.Unmarshal(raw, &r); err != nil {
				continue
			}
			if !fn(r) {
				return nil
			}
		}
		return nil
	})
}

func seenKey(t time.Time, addr string) []byte {
	// big-endian nanos for ordering; append 0x00 + addr so Seek works.
	b := make([]byte, 8+1+len(addr))
	binary.BigEndian.PutUint64(b[:8], uint64(t.UnixNano()))
	b[8] = 0
	copy(b[9:], addr)
	return b
}

func splitSeenKey(k []byte) (int64, string) {
	if len(k) < 9 {
		return 0, ""
	}
	ts := int64(binary.BigEndian.Uint64(k[:8]))
	return ts, string(k[9:])
}
