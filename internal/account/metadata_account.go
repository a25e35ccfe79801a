package account

import (
	"encoding/binary"
	"log"
	"sync"
)

// MetaKind tags what a MetadataAccount's entries represent.
type MetaKind byte

const (
	Comments MetaKind = iota
	AuthPeers
)

// MetaAsset is one entry in a MetadataAccount: a db key (prefixed by the
// account's per-kind byte), a payload blob, and a needsCommit flag.
type MetaAsset struct {
	Index       uint32
	Payload     []byte
	needsCommit bool
}

// DBKey renders this entry's on-disk key: kind byte || index(BE u32).
func (m *MetaAsset) DBKey(kind MetaKind) []byte {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], m.Index)
	return append([]byte{byte(kind)}, idx[:]...)
}

// Serialize returns the payload as stored; an empty return signals
// deletion on the next Commit.
func (m *MetaAsset) Serialize() []byte { return m.Payload }

// MetadataAccount implements spec.md section 4.C13: a kind-tagged
// index -> MetaAsset map replayed from a prefix scan on load, committing
// only entries flagged needsCommit and deleting any whose serialised
// form is empty.
type MetadataAccount struct {
	mu      sync.Mutex
	Kind    MetaKind
	entries map[uint32]*MetaAsset
}

// NewMetadataAccount builds an empty account of the given kind.
func NewMetadataAccount(kind MetaKind) *MetadataAccount {
	return &MetadataAccount{Kind: kind, entries: map[uint32]*MetaAsset{}}
}

// ReplayRecord loads one (key, value) pair found during the prefix scan
// spec.md calls for on wallet open. Parse failures are tolerated: logged
// and skipped, never fatal to the open.
func (ma *MetadataAccount) ReplayRecord(key, value []byte) {
	if len(key) < 5 {
		log.Printf("metadata account: skipping short key %x during replay", key)
		return
	}
	index := binary.BigEndian.Uint32(key[1:5])
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.entries[index] = &MetaAsset{Index: index, Payload: append([]byte{}, value...)}
}

// Set installs or updates an entry, flagging it for commit.
func (ma *MetadataAccount) Set(index uint32, payload []byte) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.entries[index] = &MetaAsset{Index: index, Payload: payload, needsCommit: true}
}

// Get returns an entry's payload, if present.
func (ma *MetadataAccount) Get(index uint32) ([]byte, bool) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	e, ok := ma.entries[index]
	if !ok {
		return nil, false
	}
	return e.Payload, true
}

// Delete flags index's entry for removal (an empty serialise() per
// spec.md's "entries whose serialize() returns empty are deleted").
func (ma *MetadataAccount) Delete(index uint32) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	if e, ok := ma.entries[index]; ok {
		e.Payload = nil
		e.needsCommit = true
	}
}

// All returns a snapshot of every currently-held entry's payload, keyed
// by index. Used by callers (such as the AuthPeers projection) that
// need to rebuild in-memory state from the full replayed set rather
// than guessing at index ranges.
func (ma *MetadataAccount) All() map[uint32][]byte {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	out := make(map[uint32][]byte, len(ma.entries))
	for idx, e := range ma.entries {
		out[idx] = append([]byte{}, e.Payload...)
	}
	return out
}

// PendingCommits returns every entry flagged needsCommit, clearing the
// flag — the caller is responsible for actually writing (or deleting,
// for empty payloads) each returned entry in one KV transaction.
func (ma *MetadataAccount) PendingCommits() []*MetaAsset {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	var out []*MetaAsset
	for _, e := range ma.entries {
		if !e.needsCommit {
			continue
		}
		out = append(out, e)
		e.needsCommit = false
		if len(e.Payload) == 0 {
			delete(ma.entries, e.Index)
		}
	}
	return out
}
