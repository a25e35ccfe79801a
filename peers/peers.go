// Package peers implements the AuthorizedPeers wallet specialisation:
// a name-keyed table of authorized public keys used to authenticate
// remote parties, persisted as a MetadataAccount of kind AuthPeers
// (spec.md sections 4.C13 and 6.4). Grounded on
// original_source/cppForSwig/AuthorizedPeers.cpp/.h, reworked from its
// map-of-maps C++ shape into Go maps over the wallet core's own
// MetadataAccount rather than a bespoke file format.
package peers

import (
	"encoding/binary"
	"sync"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
)

// peerRecord is the payload stored in each MetaAsset: a name, a
// compressed-or-uncompressed pubkey, and an optional human description.
type peerRecord struct {
	Name        string
	PubKey      []byte
	Description string
}

func (r *peerRecord) serialize() []byte {
	buf := appendLP(nil, []byte(r.Name))
	buf = appendLP(buf, r.PubKey)
	buf = appendLP(buf, []byte(r.Description))
	return buf
}

func deserializePeerRecord(data []byte) (*peerRecord, error) {
	name, n, err := readLP(data)
	if err != nil {
		return nil, err
	}
	off := n
	pub, n, err := readLP(data[off:])
	if err != nil {
		return nil, err
	}
	off += n
	desc, _, err := readLP(data[off:])
	if err != nil {
		return nil, err
	}
	return &peerRecord{Name: string(name), PubKey: pub, Description: string(desc)}, nil
}

func appendLP(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func readLP(data []byte) (field []byte, consumed int, err error) {
	if len(data) < 4 {
		return nil, 0, errs.New(errs.Serialization, "peers.readLP", errTruncated)
	}
	n := binary.LittleEndian.Uint32(data[:4])
	if len(data) < int(4+n) {
		return nil, 0, errs.New(errs.Serialization, "peers.readLP", errTruncated)
	}
	return append([]byte{}, data[4:4+n]...), int(4 + n), nil
}

// RootSignature is the optional (rootPubkey, signature) pair a peer set
// can carry to prove its own identity to a verifier out-of-band.
type RootSignature struct {
	RootPubKey []byte
	Signature  []byte
}

// AuthorizedPeers is the wallet-backed projection over a MetadataAccount
// of kind AuthPeers: name -> pubkey, pubkey -> (description, index), and
// an optional root-signature pair. The "own" pubkey (index 0, by
// convention) is reserved and cannot be erased by name.
type AuthorizedPeers struct {
	mu sync.Mutex

	meta *account.MetadataAccount

	nameToKey map[string][]byte
	keyToMeta map[string]struct {
		Description string
		Index       uint32
	}
	ownPubKey []byte
	rootSig   *RootSignature
	nextIndex uint32

	peerRootKeys map[string]struct {
		Description string
		Index       uint32
	}
}

// OwnKeyIndex is the reserved index the wallet's own identity key lives
// at; erase-by-name is refused for the peer registered here.
const OwnKeyIndex uint32 = 0

// New builds an empty AuthorizedPeers projection backed by meta, which
// must be a freshly-created or already-replayed MetadataAccount of kind
// AuthPeers.
func New(meta *account.MetadataAccount) *AuthorizedPeers {
	return &AuthorizedPeers{
		meta:      meta,
		nameToKey: map[string][]byte{},
		keyToMeta: map[string]struct {
			Description string
			Index       uint32
		}{},
		nextIndex: 1,
		peerRootKeys: map[string]struct {
			Description string
			Index       uint32
		}{},
	}
}

// LoadFromAccount rebuilds the in-memory projection from every entry
// already replayed into meta (spec.md section 4.C13's "persistence
// replays on load").
func (p *AuthorizedPeers) LoadFromAccount() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx, payload := range p.meta.All() {
		rec, err := deserializePeerRecord(payload)
		if err != nil {
			continue // tolerate occasional parse failures, per spec.md section 4.C13
		}
		if idx >= rootKeyIndexBase {
			p.peerRootKeys[string(rec.PubKey)] = struct {
				Description string
				Index       uint32
			}{Description: rec.Description, Index: idx}
			continue
		}
		if rec.Name != "" {
			p.nameToKey[rec.Name] = rec.PubKey
		}
		p.keyToMeta[string(rec.PubKey)] = struct {
			Description string
			Index       uint32
		}{Description: rec.Description, Index: idx}
		if idx == OwnKeyIndex {
			p.ownPubKey = rec.PubKey
		}
		if idx >= p.nextIndex {
			p.nextIndex = idx + 1
		}
	}
	return nil
}

// AddPeer registers pubkey under every name in names, assigning it the
// next sequential index unless it is already known.
func (p *AuthorizedPeers) AddPeer(pubkey []byte, description string, names ...string) error {
	if len(names) == 0 {
		return errs.New(errs.Account, "AuthorizedPeers.AddPeer", errEmptyNameList)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, existing := p.indexForKeyLocked(pubkey)
	if !existing {
		idx = p.nextIndex
		p.nextIndex++
	}
	for _, name := range names {
		p.nameToKey[name] = pubkey
	}
	p.keyToMeta[string(pubkey)] = struct {
		Description string
		Index       uint32
	}{Description: description, Index: idx}

	rec := &peerRecord{Name: names[0], PubKey: pubkey, Description: description}
	p.meta.Set(idx, rec.serialize())
	return nil
}

// SetOwnKey registers pubkey as the wallet's own identity, reserved at
// OwnKeyIndex.
func (p *AuthorizedPeers) SetOwnKey(pubkey []byte, description string) {
	p.mu.Lock()
	p.ownPubKey = pubkey
	p.mu.Unlock()
	rec := &peerRecord{Name: "own", PubKey: pubkey, Description: description}
	p.meta.Set(OwnKeyIndex, rec.serialize())
	p.mu.Lock()
	p.nameToKey["own"] = pubkey
	p.keyToMeta[string(pubkey)] = struct {
		Description string
		Index       uint32
	}{Description: description, Index: OwnKeyIndex}
	p.mu.Unlock()
}

func (p *AuthorizedPeers) indexForKeyLocked(pubkey []byte) (uint32, bool) {
	m, ok := p.keyToMeta[string(pubkey)]
	return m.Index, ok
}

// EraseName removes a name -> pubkey mapping. Refuses to erase the "own"
// entry by name, per spec.md section 4.C13.
func (p *AuthorizedPeers) EraseName(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.nameToKey[name]
	if !ok {
		return nil
	}
	if p.ownPubKey != nil && string(key) == string(p.ownPubKey) {
		return errs.New(errs.Account, "AuthorizedPeers.EraseName", errCannotEraseOwnKey)
	}
	delete(p.nameToKey, name)
	return nil
}

// EraseKey removes a pubkey entirely: its metadata, and every name
// pointing at it.
func (p *AuthorizedPeers) EraseKey(pubkey []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, ok := p.keyToMeta[string(pubkey)]
	if !ok {
		return nil
	}
	if meta.Index == OwnKeyIndex {
		return errs.New(errs.Account, "AuthorizedPeers.EraseKey", errCannotEraseOwnKey)
	}
	delete(p.keyToMeta, string(pubkey))
	for name, k := range p.nameToKey {
		if string(k) == string(pubkey) {
			delete(p.nameToKey, name)
		}
	}
	p.meta.Delete(meta.Index)
	return nil
}

// NameToPubKey returns a snapshot of the name -> pubkey table.
func (p *AuthorizedPeers) NameToPubKey() map[string][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string][]byte, len(p.nameToKey))
	for k, v := range p.nameToKey {
		out[k] = v
	}
	return out
}

// PubKeyToDescription returns a snapshot of pubkey -> (description, index).
func (p *AuthorizedPeers) PubKeyToDescription() map[string]struct {
	Description string
	Index       uint32
} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]struct {
		Description string
		Index       uint32
	}, len(p.keyToMeta))
	for k, v := range p.keyToMeta {
		out[k] = v
	}
	return out
}

// OwnPublicKey returns the reserved own identity key, if set.
func (p *AuthorizedPeers) OwnPublicKey() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ownPubKey
}

// SetRootSignature attaches the optional (rootPubkey, signature) pair.
func (p *AuthorizedPeers) SetRootSignature(rootPub, sig []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rootSig = &RootSignature{RootPubKey: rootPub, Signature: sig}
}

// RootSignature returns the attached root-signature pair, if any.
func (p *AuthorizedPeers) RootSignature() *RootSignature {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rootSig
}

// VerifyRootSignature checks the attached root signature against
// messageHash using the standard secp256k1 verify path.
func (p *AuthorizedPeers) VerifyRootSignature(messageHash []byte) (bool, error) {
	p.mu.Lock()
	rs := p.rootSig
	p.mu.Unlock()
	if rs == nil {
		return false, errs.New(errs.Account, "AuthorizedPeers.VerifyRootSignature", errNoRootSignature)
	}
	return cryptoadapter.Secp256k1Verify(rs.RootPubKey, messageHash, rs.Signature)
}

// rootKeyIndexBase separates peer-root-key entries from named-peer
// entries within the same flat MetadataAccount index space (named peers
// occupy indices starting at OwnKeyIndex+1).
const rootKeyIndexBase uint32 = 0x80000000

// AddPeerRootKey registers a root public key (one belonging to a
// certificate-authority-like peer, not addressable by name) under the
// given description.
func (p *AuthorizedPeers) AddPeerRootKey(rootPub []byte, description string) error {
	if _, err := cryptoadapter.PointUncompress(rootPub); err != nil {
		return errs.New(errs.Account, "AuthorizedPeers.AddPeerRootKey", errs.ErrInvalidPublicKey)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.peerRootKeys[string(rootPub)]; ok {
		existing.Description = description
		p.peerRootKeys[string(rootPub)] = existing
		return nil
	}
	idx := rootKeyIndexBase + uint32(len(p.peerRootKeys))
	p.peerRootKeys[string(rootPub)] = struct {
		Description string
		Index       uint32
	}{Description: description, Index: idx}
	rec := &peerRecord{Name: "", PubKey: rootPub, Description: description}
	p.meta.Set(idx, rec.serialize())
	return nil
}

// ErasePeerRootKey removes a previously registered root key.
func (p *AuthorizedPeers) ErasePeerRootKey(rootPub []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, ok := p.peerRootKeys[string(rootPub)]
	if !ok {
		return
	}
	delete(p.peerRootKeys, string(rootPub))
	p.meta.Delete(meta.Index)
}

// PeerRootKeys returns a snapshot of the registered root keys.
func (p *AuthorizedPeers) PeerRootKeys() map[string]struct {
	Description string
	Index       uint32
} {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]struct {
		Description string
		Index       uint32
	}, len(p.peerRootKeys))
	for k, v := range p.peerRootKeys {
		out[k] = v
	}
	return out
}

// AddRootSignature attaches a (rootPubkey, signature) pair after
// verifying that rootPub's key signed over this peer set's own public
// key, so the holder of rootPub vouches for this identity.
func (p *AuthorizedPeers) AddRootSignature(rootPub, sig []byte) error {
	own := p.OwnPublicKey()
	if own == nil {
		return errs.New(errs.Account, "AuthorizedPeers.AddRootSignature", errNoOwnKey)
	}
	ok, err := cryptoadapter.Secp256k1Verify(rootPub, cryptoadapter.SHA256(own), sig)
	if err != nil {
		return errs.New(errs.Account, "AuthorizedPeers.AddRootSignature", err)
	}
	if !ok {
		return errs.New(errs.Account, "AuthorizedPeers.AddRootSignature", errBadRootSignature)
	}
	p.SetRootSignature(rootPub, sig)
	return nil
}

type peersErr string

func (e peersErr) Error() string { return string(e) }

const (
	errTruncated         = peersErr("truncated peer record")
	errEmptyNameList     = peersErr("addPeer requires at least one name")
	errCannotEraseOwnKey = peersErr("the wallet's own key cannot be erased")
	errNoRootSignature   = peersErr("no root signature attached")
	errNoOwnKey          = peersErr("no own key set on this peer set")
	errBadRootSignature  = peersErr("root signature does not match this peer set's own key")
)
