package kvstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTemp(t)

	if err := s.Update(func(tx *Tx) error {
		return tx.Put("wallet", []byte{0xB0, 1}, []byte("meta"))
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	err := s.View(func(tx *Tx) error {
		v, ok, err := tx.Get("wallet", []byte{0xB0, 1})
		if err != nil {
			return err
		}
		if !ok || !bytes.Equal(v, []byte("meta")) {
			t.Fatalf("unexpected value: %v ok=%v", v, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	if err := s.Update(func(tx *Tx) error {
		return tx.Delete("wallet", []byte{0xB0, 1})
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	err = s.View(func(tx *Tx) error {
		_, ok, err := tx.Get("wallet", []byte{0xB0, 1})
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("expected key to be gone")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestReadOnlyTxRejectsWrites(t *testing.T) {
	s := openTemp(t)
	if err := s.EnsureSubDB("wallet"); err != nil {
		t.Fatalf("EnsureSubDB: %v", err)
	}

	err := s.View(func(tx *Tx) error {
		return tx.Put("wallet", []byte("k"), []byte("v"))
	})
	if err == nil {
		t.Fatal("expected write rejection on read-only transaction")
	}
}

func TestWipeZeroesBeforeDelete(t *testing.T) {
	s := openTemp(t)
	if err := s.Update(func(tx *Tx) error {
		return tx.Put("keys", []byte("k1"), []byte("sensitive-data"))
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Update(func(tx *Tx) error {
		return tx.Wipe("keys", []byte("k1"))
	}); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	err := s.View(func(tx *Tx) error {
		_, ok, err := tx.Get("keys", []byte("k1"))
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("expected key gone after wipe")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestCursorSeekGEAndAdvance(t *testing.T) {
	s := openTemp(t)
	keys := [][]byte{{0x01}, {0x03}, {0x05}, {0x07}}
	if err := s.Update(func(tx *Tx) error {
		for _, k := range keys {
			if err := tx.Put("ordered", k, []byte{0xff}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	err := s.View(func(tx *Tx) error {
		c, err := tx.Cursor("ordered")
		if err != nil {
			return err
		}
		k, _, ok := c.SeekGE([]byte{0x02})
		if !ok || !bytes.Equal(k, []byte{0x03}) {
			t.Fatalf("seek-ge(0x02) = %x ok=%v, want 0x03", k, ok)
		}
		k, _, ok = c.Advance()
		if !ok || !bytes.Equal(k, []byte{0x05}) {
			t.Fatalf("advance = %x ok=%v, want 0x05", k, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestGetOnMissingSubDBInReadOnlyTxErrors(t *testing.T) {
	s := openTemp(t)
	err := s.View(func(tx *Tx) error {
		_, _, err := tx.Get("nonexistent", []byte("k"))
		return err
	})
	if err == nil {
		t.Fatal("expected error reading from a sub-database that was never created")
	}
}
