// Package account implements the AssetAccount (C10), AddressAccount
// (C11) and MetadataAccount (C13) entities from spec.md. Grounded on the
// teacher's wallet/wallet.go for the "one struct owns its persistence
// plus a mutex" shape, generalised here into the reentrant-lock pattern
// spec.md section 5 describes (same substitution decryptdata uses: a
// holder-token identity instead of goroutine-id introspection).
package account

import (
	"sync"

	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/cipher"
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/decryptdata"
	"github.com/coredge/hdvault/internal/derivation"
	"github.com/coredge/hdvault/internal/errs"
)

// DefaultLookAhead is the look-ahead window extendPublicChain uses when
// bumping past lastComputedIndex, except for ECDH accounts (always 1).
const DefaultLookAhead = 100

// LockToken mirrors decryptdata.LockToken's identity-comparison scheme
// for AssetAccount's own reentrant lock (a distinct lockable entity per
// spec.md section 5).
type LockToken struct{}

// AssetAccount indexes Assets by their sequential index, tracking the
// watermark of indices handed out to callers and the highest index the
// chain has actually computed so far. RootPub is always the compressed
// form, matching what every derivation.Scheme consumes; Asset values
// store the uncompressed form per spec.md section 4.C9.
type AssetAccount struct {
	mu     sync.Mutex
	cond   *sync.Cond
	holder *LockToken
	depth  int

	ID     []byte
	Scheme derivation.Scheme

	RootPub  []byte // compressed
	RootPriv []byte // nil unless the account's root carries a private key in cleartext

	// EncryptionKeyID/KdfID identify the wallet's master-key wrapping
	// used to encrypt any private key this account derives.
	EncryptionKeyID []byte
	KdfID           []byte

	assets            map[uint32]*asset.Asset
	highestUsedIndex  int64 // -1 means none handed out yet
	lastComputedIndex int64 // -1 means nothing derived yet
	lastPrivateIndex  int64 // -1 means no asset has a private key filled in yet
	lookAhead         int
	lastHashedAsset   int64
	hashMap           map[string]map[byte][]byte // string(assetID) -> scriptType -> prefixedHash
}

// New builds an empty AssetAccount for the given scheme and root key
// material. lookAhead should be DefaultLookAhead, or 1 for ECDH schemes.
func New(id []byte, scheme derivation.Scheme, rootPubCompressed, rootPriv, encryptionKeyID, kdfID []byte, lookAhead int) *AssetAccount {
	a := &AssetAccount{
		ID:                append([]byte{}, id...),
		Scheme:            scheme,
		RootPub:           rootPubCompressed,
		RootPriv:          rootPriv,
		EncryptionKeyID:   encryptionKeyID,
		KdfID:             kdfID,
		assets:            map[uint32]*asset.Asset{},
		highestUsedIndex:  -1,
		lastComputedIndex: -1,
		lastPrivateIndex:  -1,
		lookAhead:         lookAhead,
		lastHashedAsset:   -1,
		hashMap:           map[string]map[byte][]byte{},
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Asset looks up an already-computed asset by index.
func (a *AssetAccount) Asset(index uint32) (*asset.Asset, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	as, ok := a.assets[index]
	return as, ok
}

// LastComputedIndex reports the highest index the chain has derived.
func (a *AssetAccount) LastComputedIndex() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastComputedIndex
}

// HighestUsedIndex reports the high-watermark index handed out to a
// caller so far, -1 if none have been.
func (a *AssetAccount) HighestUsedIndex() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.highestUsedIndex
}

// Snapshot returns a shallow copy of every computed asset, keyed by
// index, for persistence or iteration by callers outside this package.
func (a *AssetAccount) Snapshot() map[uint32]*asset.Asset {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint32]*asset.Asset, len(a.assets))
	for idx, as := range a.assets {
		out[idx] = as
	}
	return out
}

// Lock acquires the account's own reentrant lock, independent of any
// decryptdata.Container lock the caller may also be holding.
func (a *AssetAccount) Lock(tok *LockToken) (*LockToken, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tok != nil && a.holder == tok {
		a.depth++
		return tok, func() { a.unlock(tok) }
	}
	for a.holder != nil {
		a.cond.Wait()
	}
	newTok := &LockToken{}
	a.holder = newTok
	a.depth = 1
	return newTok, func() { a.unlock(newTok) }
}

func (a *AssetAccount) unlock(tok *LockToken) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder != tok {
		return
	}
	a.depth--
	if a.depth == 0 {
		a.holder = nil
		a.cond.Broadcast()
	}
}

// GetNewAsset implements spec.md section 4.C10's getNewAsset: bumps the
// watermark, extends the public chain by the account's look-ahead if the
// bumped index hasn't been computed yet, and returns the resulting asset.
func (a *AssetAccount) GetNewAsset() (*asset.Asset, error) {
	_, release := a.Lock(nil)
	defer release()

	a.highestUsedIndex++
	target := a.highestUsedIndex
	if target > a.lastComputedIndex {
		lookAheadTarget := target + int64(a.lookAhead) - 1
		if err := a.extendPublicChainToIndexLocked(uint32(lookAheadTarget)); err != nil {
			return nil, errs.New(errs.Account, "GetNewAsset", errs.ErrLookupOverflow)
		}
	}
	as, ok := a.assets[uint32(target)]
	if !ok {
		return nil, errs.New(errs.Account, "GetNewAsset", errs.ErrLookupOverflow)
	}
	return as, nil
}

// ExtendPublicChain extends by count assets beyond lastComputedIndex,
// never overwriting a private-bearing asset with a public-only one.
func (a *AssetAccount) ExtendPublicChain(count int) error {
	_, release := a.Lock(nil)
	defer release()
	target := a.lastComputedIndex + int64(count)
	return a.extendPublicChainToIndexLocked(uint32(target))
}

// ExtendPublicChainToIndex is the public, locking entry point for
// extendPublicChainToIndex.
func (a *AssetAccount) ExtendPublicChainToIndex(target uint32) error {
	_, release := a.Lock(nil)
	defer release()
	return a.extendPublicChainToIndexLocked(target)
}

// SetHighestUsedIndex forces the watermark directly, used only when
// reconstructing a watching-only mirror from an already-built account
// whose watermark must carry over unchanged.
func (a *AssetAccount) SetHighestUsedIndex(idx int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.highestUsedIndex = idx
}

func (a *AssetAccount) extendPublicChainToIndexLocked(target uint32) error {
	if int64(target) <= a.lastComputedIndex {
		return nil
	}
	start := uint32(a.lastComputedIndex + 1)
	kps, err := a.Scheme.ExtendPublicChain(a.lastPublicParent(), start, target)
	if err != nil {
		return errs.New(errs.Account, "extendPublicChainToIndex", err)
	}
	for _, kp := range kps {
		if existing, ok := a.assets[kp.Index]; ok && existing.PrivateKey != nil {
			continue // never overwrite a private-bearing asset with a public-only one
		}
		uncompressed, err := cryptoadapter.PointUncompress(kp.PubKey)
		if err != nil {
			return errs.New(errs.Account, "extendPublicChainToIndex", err)
		}
		a.assets[kp.Index] = asset.NewWatchingOnly(kp.Index, fullIDFor(a.ID, kp.Index), uncompressed)
	}
	a.lastComputedIndex = int64(target)
	return nil
}

// ExtendPrivateChain mirrors ExtendPublicChain but does overwrite a
// public-only asset with its private-bearing equivalent once the parent
// private key becomes available under tok/ctr. rootAsset is the asset
// carrying this account's own root private key, used when RootPriv
// isn't already held in cleartext (the common case: the root key lives
// encrypted under the decrypted-data container).
func (a *AssetAccount) ExtendPrivateChain(tok *decryptdata.LockToken, ctr *decryptdata.Container, rootAsset *asset.Asset, count int) error {
	_, release := a.Lock(nil)
	defer release()
	target := a.lastPrivateIndex + int64(count)
	return a.extendPrivateChainToIndexLocked(tok, ctr, rootAsset, uint32(target))
}

// ExtendPrivateChainToIndex is the indexed variant extendPrivateChain
// delegates to, also exposed directly for fillPrivateKey's use.
func (a *AssetAccount) ExtendPrivateChainToIndex(tok *decryptdata.LockToken, ctr *decryptdata.Container, rootAsset *asset.Asset, target uint32) error {
	_, release := a.Lock(nil)
	defer release()
	return a.extendPrivateChainToIndexLocked(tok, ctr, rootAsset, target)
}

// extendPrivateChainToIndexLocked fills every asset from the nearest
// already-private-bearing predecessor (or the account root, if none
// exist yet) through target, overwriting any public-only asset it
// encounters along the way with its private-bearing equivalent (same
// pubkey, per spec.md section 4.C10). Unlike extendPublicChainToIndexLocked,
// this always starts the walk at lastPrivateIndex+1, never at
// lastComputedIndex+1 — the public look-ahead frontier and the private
// fill frontier are independent watermarks, since the public chain is
// routinely extended well past any index that has ever needed signing.
func (a *AssetAccount) extendPrivateChainToIndexLocked(tok *decryptdata.LockToken, ctr *decryptdata.Container, rootAsset *asset.Asset, target uint32) error {
	if int64(target) <= a.lastPrivateIndex {
		return nil
	}

	start, parentPub, parentPriv, err := a.privateChainParentLocked(tok, ctr, rootAsset)
	if err != nil {
		return err
	}
	if target < start {
		target = start
	}
	kps, err := a.Scheme.ExtendPrivateChain(parentPub, parentPriv, start, target)
	if err != nil {
		return errs.New(errs.Account, "extendPrivateChain", err)
	}
	for _, kp := range kps {
		id := fullIDFor(a.ID, kp.Index)
		uncompressed, err := cryptoadapter.PointUncompress(kp.PubKey)
		if err != nil {
			return errs.New(errs.Account, "extendPrivateChain", err)
		}
		ciph, err := cipher.New(a.KdfID, a.EncryptionKeyID)
		if err != nil {
			return errs.New(errs.Account, "extendPrivateChain", err)
		}
		ct, err := ctr.EncryptData(tok, ciph, kp.PrivKey)
		if err != nil {
			return err
		}
		pk := &cipher.PrivateKeyContainer{Data: &cipher.CipherData{Ciphertext: ct, Cipher: ciph}}
		a.assets[kp.Index] = asset.NewWithPrivateKey(kp.Index, id, uncompressed, pk)
	}
	if int64(target) > a.lastComputedIndex {
		a.lastComputedIndex = int64(target)
	}
	if int64(target) > a.lastPrivateIndex {
		a.lastPrivateIndex = int64(target)
	}
	return nil
}

// privateChainParentLocked returns the index to resume private
// derivation from and the (pub, priv) pair the scheme should chain
// from. BIP-32-family schemes derive every index directly from the
// account root, so the parent is always the root regardless of start.
// Armory-135's chain is sequential — each step's key depends on the
// previous step's pubkey — so the parent must be the nearest
// already-filled private-bearing asset (index start-1), or the root
// itself when start is 0.
func (a *AssetAccount) privateChainParentLocked(tok *decryptdata.LockToken, ctr *decryptdata.Container, rootAsset *asset.Asset) (start uint32, parentPub, parentPriv []byte, err error) {
	rootPriv := a.RootPriv
	if rootPriv == nil && rootAsset != nil {
		sb, derr := ctr.GetDecryptedPrivateData(tok, rootAsset)
		if derr != nil {
			return 0, nil, nil, derr
		}
		rootPriv = sb.Bytes()
	}
	if rootPriv == nil {
		return 0, nil, nil, errs.New(errs.Account, "extendPrivateChain", errs.ErrPrivateKeyMissing)
	}

	start = uint32(0)
	if a.lastPrivateIndex >= 0 {
		start = uint32(a.lastPrivateIndex + 1)
	}

	if _, isArmory := a.Scheme.(*derivation.Armory135Scheme); isArmory && start > 0 {
		prevIdx := start - 1
		prev, ok := a.assets[prevIdx]
		if !ok || prev.PrivateKey == nil {
			return 0, nil, nil, errs.New(errs.Account, "extendPrivateChain", errs.ErrInvariantViolation)
		}
		sb, derr := ctr.GetDecryptedPrivateData(tok, prev)
		if derr != nil {
			return 0, nil, nil, derr
		}
		prevPub, perr := prev.PubCompressed()
		if perr != nil {
			return 0, nil, nil, perr
		}
		return start, prevPub, sb.Bytes(), nil
	}
	return start, a.RootPub, rootPriv, nil
}

// FillPrivateKey implements the Armory-135 legacy-support path: classic
// linear derivation means producing a private key at index k requires
// walking back to the nearest earlier private-bearing asset (or the
// root) and extending privately forward. BIP-32-family schemes derive
// every index from the root directly, so this degenerates to a single
// extendPrivateChainToIndex call.
func (a *AssetAccount) FillPrivateKey(tok *decryptdata.LockToken, ctr *decryptdata.Container, rootAsset *asset.Asset, index uint32) (*asset.Asset, error) {
	_, release := a.Lock(nil)
	defer release()
	if as, ok := a.assets[index]; ok && as.PrivateKey != nil {
		return as, nil
	}
	if err := a.extendPrivateChainToIndexLocked(tok, ctr, rootAsset, index); err != nil {
		return nil, err
	}
	as, ok := a.assets[index]
	if !ok {
		return nil, errs.New(errs.Account, "FillPrivateKey", errs.ErrLookupOverflow)
	}
	return as, nil
}

// GetAddressHashMap lazily builds assetID -> {scriptType -> prefixedHash}
// for every asset beyond lastHashedAsset, memoising the result.
// hashFor computes the prefixed hash for one (asset, script type) pair;
// callers in the address package supply it since the hash layout depends
// on the address variant (C12), which this package doesn't import to
// avoid a cycle (address will import account, not the reverse).
func (a *AssetAccount) GetAddressHashMap(scriptTypes []byte, hashFor func(as *asset.Asset, scriptType byte) ([]byte, error)) (map[string]map[byte][]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for idx := a.lastHashedAsset + 1; idx <= a.lastComputedIndex; idx++ {
		as, ok := a.assets[uint32(idx)]
		if !ok {
			continue
		}
		key := string(as.ID)
		entry := a.hashMap[key]
		if entry == nil {
			entry = map[byte][]byte{}
		}
		for _, st := range scriptTypes {
			h, err := hashFor(as, st)
			if err != nil {
				continue
			}
			entry[st] = h
		}
		a.hashMap[key] = entry
	}
	a.lastHashedAsset = a.lastComputedIndex
	return a.hashMap, nil
}

// lastPublicParent returns the public key extension should chain from:
// the account root for BIP-32-family schemes, or the highest-known
// asset's pubkey for Armory-135 (which chains from the last asset, not
// the root).
func (a *AssetAccount) lastPublicParent() []byte {
	if _, ok := a.Scheme.(*derivation.Armory135Scheme); ok {
		if a.lastComputedIndex >= 0 {
			if as, ok := a.assets[uint32(a.lastComputedIndex)]; ok {
				compressed, err := as.PubCompressed()
				if err == nil {
					return compressed
				}
			}
		}
	}
	return a.RootPub
}

func fullIDFor(accountID []byte, index uint32) []byte {
	id := append([]byte{}, accountID...)
	var idxBuf [4]byte
	idxBuf[0] = byte(index >> 24)
	idxBuf[1] = byte(index >> 16)
	idxBuf[2] = byte(index >> 8)
	idxBuf[3] = byte(index)
	return append(id, idxBuf[:]...)
}
