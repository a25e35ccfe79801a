package resolver

import (
	"bytes"
	"sync"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/address"
	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/secretbytes"
	"github.com/coredge/hdvault/wallet"
)

// SingleWallet implements spec.md section 4.C15's single-wallet
// resolver: hash->preimage and pubkey->asset caches, falling back to a
// scan of every account's hash map (tried under every permitted script
// type) or every asset's public key on a cache miss.
type SingleWallet struct {
	mu  sync.Mutex
	w   *wallet.Wallet
	net address.Network

	hashCache   map[string][]byte
	pubkeyCache map[string]assetHit
}

// NewSingleWallet builds a resolver over w's currently registered
// accounts. Accounts added to w after construction are still visible —
// the resolver always ranges over w.Accounts() live, only the two
// caches are owned by the resolver itself.
func NewSingleWallet(w *wallet.Wallet, net address.Network) *SingleWallet {
	return &SingleWallet{
		w:           w,
		net:         net,
		hashCache:   map[string][]byte{},
		pubkeyCache: map[string]assetHit{},
	}
}

// ByVal implements byVal(hashPrefix) -> preimage.
func (r *SingleWallet) ByVal(prefixedHash []byte) ([]byte, error) {
	r.mu.Lock()
	if pre, ok := r.hashCache[string(prefixedHash)]; ok {
		r.mu.Unlock()
		return pre, nil
	}
	r.mu.Unlock()

	for _, aa := range r.w.Accounts() {
		types := typesSlice(aa.PermittedTypes)
		for _, acct := range []*account.AssetAccount{aa.Outer, aa.Inner} {
			hashMap, err := acct.GetAddressHashMap(types, func(as *asset.Asset, t byte) ([]byte, error) {
				e, err := address.ForAsset(as, address.ScriptType(t), r.net)
				if err != nil {
					return nil, err
				}
				return e.PrefixedHash, nil
			})
			if err != nil {
				continue
			}
			for idRaw, byType := range hashMap {
				for t, h := range byType {
					if !bytes.Equal(h, prefixedHash) {
						continue
					}
					as, ok := acct.Asset(assetIndexOf(idRaw))
					if !ok {
						continue
					}
					entry, err := address.ForAsset(as, address.ScriptType(t), r.net)
					if err != nil {
						return nil, errUnknownAddress("SingleWallet.ByVal")
					}
					r.mu.Lock()
					r.hashCache[string(prefixedHash)] = entry.Preimage
					for pred := entry.Predecessor; pred != nil; pred = pred.Predecessor {
						r.hashCache[string(pred.PrefixedHash)] = pred.Preimage
					}
					r.mu.Unlock()
					return entry.Preimage, nil
				}
			}
		}
	}
	return nil, errUnknownAddress("SingleWallet.ByVal")
}

// PrivKeyFor implements privKeyFor(pubkey) -> decrypted scalar. Assets
// are handed out public-only (the lookahead window only derives public
// keys ahead of use), so a cache hit or fresh scan match may still need
// its private key lazily filled in before it can be decrypted.
func (r *SingleWallet) PrivKeyFor(pubkey []byte) (*secretbytes.SecretBytes, error) {
	r.mu.Lock()
	hit, cached := r.pubkeyCache[string(pubkey)]
	r.mu.Unlock()
	if !cached {
		var err error
		hit, err = r.findAssetForPubkey(pubkey)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.pubkeyCache[string(pubkey)] = hit
		r.mu.Unlock()
	}
	tok, release := r.w.LockDecryptedContainer()
	defer release()
	sb, err := resolvePrivateKey(r.w, tok, hit)
	if err != nil {
		return nil, err
	}
	if as, ok := hit.acct.Asset(hit.as.Index); ok {
		r.mu.Lock()
		r.pubkeyCache[string(pubkey)] = assetHit{acct: hit.acct, as: as}
		r.mu.Unlock()
	}
	return sb, nil
}

func (r *SingleWallet) findAssetForPubkey(pubkey []byte) (assetHit, error) {
	for _, aa := range r.w.Accounts() {
		for _, acct := range []*account.AssetAccount{aa.Outer, aa.Inner} {
			for idx := int64(0); idx <= acct.LastComputedIndex(); idx++ {
				as, ok := acct.Asset(uint32(idx))
				if !ok {
					continue
				}
				compressed, err := as.PubCompressed()
				if err == nil && bytes.Equal(compressed, pubkey) {
					return assetHit{acct: acct, as: as}, nil
				}
				if bytes.Equal(as.PubUncompressed, pubkey) {
					return assetHit{acct: acct, as: as}, nil
				}
			}
		}
	}
	return assetHit{}, errNoAsset("SingleWallet.PrivKeyFor")
}

func typesSlice(set map[byte]bool) []byte {
	out := make([]byte, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

// assetIndexOf recovers the sequential index suffix of a full asset id,
// the trailing 4 bytes big-endian, matching wallet.fullAccountID's
// convention.
func assetIndexOf(fullID string) uint32 {
	if len(fullID) < 4 {
		return 0
	}
	b := []byte(fullID)
	n := len(b)
	return uint32(b[n-4])<<24 | uint32(b[n-3])<<16 | uint32(b[n-2])<<8 | uint32(b[n-1])
}
