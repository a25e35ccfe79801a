package resolver

import (
	"bytes"
	"errors"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/secretbytes"
	"github.com/coredge/hdvault/wallet"
)

// Exotic implements spec.md section 4.C15's exotic fallback: wraps a
// SingleWallet resolver, and on NoAsset from the pubkey path, linearly
// scans every account's assets for a pubkey used in an unusual script
// the single-wallet resolver's own caches never learned about.
type Exotic struct {
	inner *SingleWallet
	w     *wallet.Wallet
}

// NewExotic wraps a SingleWallet resolver already built over w.
func NewExotic(inner *SingleWallet, w *wallet.Wallet) *Exotic {
	return &Exotic{inner: inner, w: w}
}

// ByVal delegates to the wrapped single-wallet resolver unchanged.
func (e *Exotic) ByVal(prefixedHash []byte) ([]byte, error) {
	return e.inner.ByVal(prefixedHash)
}

// PrivKeyFor tries the wrapped resolver first; on NoAsset it falls back
// to a full linear scan of every account's computed assets.
func (e *Exotic) PrivKeyFor(pubkey []byte) (*secretbytes.SecretBytes, error) {
	sb, err := e.inner.PrivKeyFor(pubkey)
	if err == nil {
		return sb, nil
	}
	if !errors.Is(err, errs.ErrNoAssetForPubkey) {
		return nil, err
	}

	tok, release := e.w.LockDecryptedContainer()
	defer release()
	for _, aa := range e.w.Accounts() {
		for _, acct := range []*account.AssetAccount{aa.Outer, aa.Inner} {
			for _, as := range acct.Snapshot() {
				if matchesPubkey(as, pubkey) {
					return resolvePrivateKey(e.w, tok, assetHit{acct: acct, as: as})
				}
			}
		}
	}
	return nil, errNoAsset("Exotic.PrivKeyFor")
}

func matchesPubkey(as *asset.Asset, pubkey []byte) bool {
	if bytes.Equal(as.PubUncompressed, pubkey) {
		return true
	}
	compressed, err := as.PubCompressed()
	return err == nil && bytes.Equal(compressed, pubkey)
}
