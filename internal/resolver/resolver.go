// Package resolver implements the three resolver-feed variants from
// spec.md section 4.C15: the adapter an external signer consumes to
// turn a script hash back into its preimage, or a public key into its
// decrypted private scalar. Grounded on wallet.Wallet's own
// GetAssetIDForAddr (the same hash-map probing idiom), generalised into
// a standalone feed so a signer never needs to import the wallet
// package's full surface.
package resolver

import (
	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/decryptdata"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/secretbytes"
	"github.com/coredge/hdvault/wallet"
)

// Resolver is the contract every variant implements: byVal(hashPrefix)
// -> preimage, privKeyFor(pubkey) -> decrypted scalar.
type Resolver interface {
	ByVal(prefixedHash []byte) ([]byte, error)
	PrivKeyFor(pubkey []byte) (*secretbytes.SecretBytes, error)
}

type resolverErr string

func (e resolverErr) Error() string { return string(e) }

const (
	errByValUnsupported = resolverErr("byVal lookups are not supported by this resolver")
)

func errUnknownAddress(op string) error { return errs.New(errs.Resolver, op, errs.ErrUnknownAddress) }
func errNoAsset(op string) error        { return errs.New(errs.Resolver, op, errs.ErrNoAssetForPubkey) }

// assetHit pairs a located asset with the AssetAccount that derived it,
// so a resolver can lazily fill in its private key before decrypting —
// spec.md section 4.C15's signing contract requires every asset a
// wallet has ever handed out to be signable, but the account's
// lookahead window only fills public keys ahead of use.
type assetHit struct {
	acct *account.AssetAccount
	as   *asset.Asset
}

// resolvePrivateKey fills hit's private key via its owning account if
// it isn't already present, then decrypts it under tok.
func resolvePrivateKey(w *wallet.Wallet, tok *decryptdata.LockToken, hit assetHit) (*secretbytes.SecretBytes, error) {
	as := hit.as
	if as.PrivateKey == nil {
		filled, err := hit.acct.FillPrivateKey(tok, w.Container, w.RootAsset, as.Index)
		if err != nil {
			return nil, err
		}
		as = filled
	}
	return w.Container.GetDecryptedPrivateData(tok, as)
}
