package wallet

import (
	"path/filepath"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/decryptdata"
	"github.com/coredge/hdvault/internal/derivation"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/kvstore"
)

// ExportWatchingOnly implements spec.md section 4.C11's watching-only
// export: a recursive mirror wallet whose assets are public-only copies,
// preserving account structure and each account's highest-used-index
// watermark, written to its own file under datadir. ECDH accounts carry
// their scheme object across unchanged, so the full salt->index table
// that scheme already holds travels with the mirror without any extra
// serialisation step.
func (w *Wallet) ExportWatchingOnly(datadir string) (*Wallet, error) {
	path := filepath.Join(datadir, w.IDString+".wallet")
	kv, err := kvstore.Open(path)
	if err != nil {
		return nil, errs.New(errs.WalletIO, "ExportWatchingOnly", err)
	}
	if err := kv.EnsureSubDB(walletSubDB); err != nil {
		return nil, err
	}
	if err := kv.EnsureSubDB(overridesSubDB); err != nil {
		return nil, err
	}
	store := newWalletStore(kv)

	ctr, err := decryptdata.New(store, defaultRetryBudget)
	if err != nil {
		return nil, err
	}

	mirror := newWallet(store, ctr)
	mirror.ID = w.ID
	mirror.IDString = w.IDString
	mirror.ParentID = w.ID
	mirror.Kind = w.Kind
	mirror.VersionMajor, mirror.VersionMinor, mirror.VersionRevision = w.VersionMajor, w.VersionMinor, w.VersionRevision
	mirror.Network = w.Network
	mirror.MainAccountID = w.MainAccountID
	mirror.RootAsset = w.RootAsset.PublicCopy()

	for accountID, aa := range w.AddressAccounts {
		outerMirror := mirrorAssetAccount(aa.Outer)
		innerMirror := outerMirror
		if aa.Inner != aa.Outer {
			innerMirror = mirrorAssetAccount(aa.Inner)
		}
		mirrorAA := account.NewAddressAccount(accountIDBytes(accountID), outerMirror, innerMirror, aa.DefaultType, permittedTypesSlice(aa.PermittedTypes))
		mirror.registerAccount(mirrorAA)
	}

	mirror.MetaAccounts[account.Comments] = w.MetaAccounts[account.Comments]
	mirror.MetaAccounts[account.AuthPeers] = w.MetaAccounts[account.AuthPeers]

	if err := persistNewWallet(mirror); err != nil {
		return nil, err
	}
	return mirror, nil
}

// mirrorAssetAccount rebuilds a public-only AssetAccount sharing the
// source's scheme and root pubkey, replaying its computed range and
// watermark but carrying no private key material and no encryption-key
// registration (nothing under a watching-only wallet is ever encrypted).
func mirrorAssetAccount(src *account.AssetAccount) *account.AssetAccount {
	lookAhead := account.DefaultLookAhead
	if src.Scheme.Tag() == derivation.TagECDH {
		lookAhead = 1
	}
	mirror := account.New(src.ID, src.Scheme, src.RootPub, nil, nil, nil, lookAhead)
	if last := src.LastComputedIndex(); last >= 0 {
		_ = mirror.ExtendPublicChainToIndex(uint32(last))
	}
	mirror.SetHighestUsedIndex(src.HighestUsedIndex())
	return mirror
}
