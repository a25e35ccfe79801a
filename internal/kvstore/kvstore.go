// Package kvstore implements spec.md section 6.1's KV store interface:
// named sub-databases, read-only/read-write transactions, get/put/
// delete/wipe, and an ordered-scan cursor with seek-ge/advance.
// Grounded on go.etcd.io/bbolt's bucket-and-cursor model, the only
// embedded-KV-store library surfaced anywhere in the retrieved pack,
// and on the walletdb/Bucket/cursor shape the teacher's own corpus
// documents for wallet persistence.
package kvstore

import (
	"go.etcd.io/bbolt"

	"github.com/coredge/hdvault/internal/errs"
)

// Store is an open embedded database. Sub-databases are top-level
// bbolt buckets, created lazily on first use of each name.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.New(errs.WalletIO, "kvstore.Open", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.New(errs.WalletIO, "kvstore.Close", err)
	}
	return nil
}

// EnsureSubDB creates the named sub-database (bucket) if it does not
// already exist.
func (s *Store) EnsureSubDB(name string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return errs.New(errs.WalletIO, "kvstore.EnsureSubDB", err)
	}
	return nil
}

// View opens a read-only transaction and runs fn against it.
func (s *Store) View(fn func(tx *Tx) error) error {
	err := s.db.View(func(btx *bbolt.Tx) error {
		return fn(&Tx{btx: btx, writable: false})
	})
	if err != nil {
		return errs.New(errs.WalletIO, "kvstore.View", err)
	}
	return nil
}

// Update opens a read-write transaction and runs fn against it. The
// transaction commits if fn returns nil, rolls back otherwise.
func (s *Store) Update(fn func(tx *Tx) error) error {
	err := s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&Tx{btx: btx, writable: true})
	})
	if err != nil {
		return errs.New(errs.WalletIO, "kvstore.Update", err)
	}
	return nil
}

// Tx is a single transaction scoped to one or more named sub-databases.
type Tx struct {
	btx      *bbolt.Tx
	writable bool
}

func (tx *Tx) bucket(subDB string) (*bbolt.Bucket, error) {
	b := tx.btx.Bucket([]byte(subDB))
	if b == nil {
		if !tx.writable {
			return nil, errs.New(errs.WalletIO, "kvstore.Tx.bucket", errNoSuchSubDB)
		}
		var err error
		b, err = tx.btx.CreateBucket([]byte(subDB))
		if err != nil {
			return nil, errs.New(errs.WalletIO, "kvstore.Tx.bucket", err)
		}
	}
	return b, nil
}

// Get fetches key's value from subDB. Returns (nil, false) if absent.
// The returned slice is only valid for the lifetime of the transaction;
// callers that need it afterwards must copy it.
func (tx *Tx) Get(subDB string, key []byte) ([]byte, bool, error) {
	b, err := tx.bucket(subDB)
	if err != nil {
		return nil, false, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// Put writes key -> value in subDB, creating the sub-database if absent.
func (tx *Tx) Put(subDB string, key, value []byte) error {
	if !tx.writable {
		return errs.New(errs.WalletIO, "kvstore.Tx.Put", errReadOnlyTx)
	}
	b, err := tx.bucket(subDB)
	if err != nil {
		return err
	}
	if err := b.Put(key, value); err != nil {
		return errs.New(errs.WalletIO, "kvstore.Tx.Put", err)
	}
	return nil
}

// Delete removes key from subDB. A missing key is not an error.
func (tx *Tx) Delete(subDB string, key []byte) error {
	if !tx.writable {
		return errs.New(errs.WalletIO, "kvstore.Tx.Delete", errReadOnlyTx)
	}
	b, err := tx.bucket(subDB)
	if err != nil {
		return err
	}
	if err := b.Delete(key); err != nil {
		return errs.New(errs.WalletIO, "kvstore.Tx.Delete", err)
	}
	return nil
}

// Wipe overwrites key's value with zero bytes of the same length before
// deleting it, for sensitive-data deletion (spec.md section 6.1).
func (tx *Tx) Wipe(subDB string, key []byte) error {
	if !tx.writable {
		return errs.New(errs.WalletIO, "kvstore.Tx.Wipe", errReadOnlyTx)
	}
	b, err := tx.bucket(subDB)
	if err != nil {
		return err
	}
	if v := b.Get(key); v != nil {
		zeroed := make([]byte, len(v))
		if err := b.Put(key, zeroed); err != nil {
			return errs.New(errs.WalletIO, "kvstore.Tx.Wipe", err)
		}
	}
	if err := b.Delete(key); err != nil {
		return errs.New(errs.WalletIO, "kvstore.Tx.Wipe", err)
	}
	return nil
}

// Cursor opens an ordered-scan cursor over subDB.
func (tx *Tx) Cursor(subDB string) (*Cursor, error) {
	b, err := tx.bucket(subDB)
	if err != nil {
		return nil, err
	}
	return &Cursor{c: b.Cursor()}, nil
}

// Cursor supports seek-ge (seek to the first key >= target) and
// forward advance, per spec.md section 6.1.
type Cursor struct {
	c *bbolt.Cursor
}

// SeekGE positions the cursor at the first key >= target and returns
// it, or (nil, nil, false) if none exists.
func (c *Cursor) SeekGE(target []byte) (key, value []byte, ok bool) {
	k, v := c.c.Seek(target)
	if k == nil {
		return nil, nil, false
	}
	return k, v, true
}

// Advance moves the cursor to the next key in order.
func (c *Cursor) Advance() (key, value []byte, ok bool) {
	k, v := c.c.Next()
	if k == nil {
		return nil, nil, false
	}
	return k, v, true
}

// First positions the cursor at the first key in subDB.
func (c *Cursor) First() (key, value []byte, ok bool) {
	k, v := c.c.First()
	if k == nil {
		return nil, nil, false
	}
	return k, v, true
}

type kvErr string

func (e kvErr) Error() string { return string(e) }

const (
	errNoSuchSubDB = kvErr("no such sub-database")
	errReadOnlyTx  = kvErr("write attempted on a read-only transaction")
)
