package resolver

import (
	"sync"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/secretbytes"
	"github.com/coredge/hdvault/wallet"
)

// Multisig implements spec.md section 4.C15's multisig-suitable
// resolver: pre-indexes every account's assets by both compressed and
// uncompressed public key across the whole wallet. byVal is
// unsupported — multisig redeem scripts are reconstructed by the
// signer itself, never looked up by hash through this feed.
type Multisig struct {
	mu       sync.Mutex
	byPubkey map[string]assetHit
	w        *wallet.Wallet
}

// NewMultisig builds the pubkey index eagerly over every account
// currently registered on w.
func NewMultisig(w *wallet.Wallet) *Multisig {
	m := &Multisig{w: w, byPubkey: map[string]assetHit{}}
	m.reindex()
	return m
}

// Reindex rebuilds the pubkey index, for callers that extend a
// wallet's accounts after construction.
func (m *Multisig) Reindex() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reindex()
}

func (m *Multisig) reindex() {
	m.byPubkey = map[string]assetHit{}
	for _, aa := range m.w.Accounts() {
		for _, acct := range []*account.AssetAccount{aa.Outer, aa.Inner} {
			for _, as := range acct.Snapshot() {
				hit := assetHit{acct: acct, as: as}
				m.byPubkey[string(as.PubUncompressed)] = hit
				if compressed, err := as.PubCompressed(); err == nil {
					m.byPubkey[string(compressed)] = hit
				}
			}
		}
	}
}

// ByVal is unsupported for the multisig resolver (spec.md section 4.C15).
func (m *Multisig) ByVal(prefixedHash []byte) ([]byte, error) {
	return nil, errs.New(errs.Resolver, "Multisig.ByVal", errByValUnsupported)
}

// PrivKeyFor looks the asset owning pubkey up in the pre-built index,
// lazily filling in its private key if the index only holds the
// public-only form, then decrypts it through the wallet's container.
func (m *Multisig) PrivKeyFor(pubkey []byte) (*secretbytes.SecretBytes, error) {
	m.mu.Lock()
	hit, ok := m.byPubkey[string(pubkey)]
	m.mu.Unlock()
	if !ok {
		return nil, errNoAsset("Multisig.PrivKeyFor")
	}
	tok, release := m.w.LockDecryptedContainer()
	defer release()
	sb, err := resolvePrivateKey(m.w, tok, hit)
	if err != nil {
		return nil, err
	}
	if as, ok := hit.acct.Asset(hit.as.Index); ok {
		m.mu.Lock()
		hit.as = as
		m.byPubkey[string(pubkey)] = hit
		m.mu.Unlock()
	}
	return sb, nil
}
