package wallet

import (
	"sync"

	"github.com/coredge/hdvault/internal/address"
	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/errs"
)

// MultisigWallet composes N independent single-sig component wallets
// (one per cosigner) into an m-of-n redeem script, grounded on
// original_source's AssetAccount_ECDH/multisig asset-group plumbing
// (spec.md section 12, "multisig wallet variant"). Each component keeps
// its own on-disk file, KDF and container — MultisigWallet itself owns
// no key material, only the pairing of component assets at a common
// index into a redeem script.
type MultisigWallet struct {
	mu sync.Mutex

	Components  []*Wallet
	M           int
	WrapWitness bool
	Network     address.Network
}

// NewMultisigWallet pairs m-of-len(components) cosigner wallets.
func NewMultisigWallet(components []*Wallet, m int, wrapWitness bool, net address.Network) (*MultisigWallet, error) {
	if m <= 0 || m > len(components) || len(components) > 15 {
		return nil, errs.New(errs.Account, "NewMultisigWallet", errs.ErrUnsupportedScript)
	}
	return &MultisigWallet{Components: components, M: m, WrapWitness: wrapWitness, Network: net}, nil
}

// GetNewMultisigAddress draws the next address index from every
// component's main account and builds the resulting m-of-n entry.
// Components must derive in lockstep: index i on cosigner A and index i
// on cosigner B are the two halves of the same multisig address.
func (mw *MultisigWallet) GetNewMultisigAddress() (*address.Entry, []*asset.Asset, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	assets := make([]*asset.Asset, len(mw.Components))
	for i, comp := range mw.Components {
		as, _, err := comp.GetNewAddress(comp.MainAccountID, nil)
		if err != nil {
			return nil, nil, err
		}
		assets[i] = as
	}
	entry, err := address.ForMultisig(assets, mw.M, mw.WrapWitness, mw.Network)
	if err != nil {
		return nil, nil, err
	}
	return entry, assets, nil
}

// AssetsAtIndex looks every component's asset at the same derivation
// index back up, for a caller reconstructing an existing multisig
// address's redeem script (e.g. during signing) rather than minting a
// new one.
func (mw *MultisigWallet) AssetsAtIndex(index uint32) ([]*asset.Asset, error) {
	assets := make([]*asset.Asset, len(mw.Components))
	for i, comp := range mw.Components {
		aa, ok := comp.AddressAccounts[comp.MainAccountID]
		if !ok {
			return nil, errs.New(errs.Account, "MultisigWallet.AssetsAtIndex", errs.ErrUnknownAddress)
		}
		as, ok := aa.Outer.Asset(index)
		if !ok {
			return nil, errs.New(errs.Account, "MultisigWallet.AssetsAtIndex", errs.ErrUnknownAddress)
		}
		assets[i] = as
	}
	return assets, nil
}
