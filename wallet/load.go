package wallet

import (
	"path/filepath"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/decryptdata"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/kvstore"
)

// Load reopens an existing wallet file by its Base58 id string,
// reconstructing the header (kind, parent id, wallet id, root asset,
// main account id) and both meta accounts. It does not rebuild address
// accounts and does not restore the default key or the master-key and
// KDF ids. Load on its own is enough to drive the peer-manager CLI and
// any other tool that only needs the root identity and the AuthPeers/
// Comments meta accounts, spec.md section 4.C14's minimum "wallet
// open" contract for those consumers.
func Load(datadir, walletIDString string) (*Wallet, error) {
	path := filepath.Join(datadir, walletIDString+".wallet")
	kv, err := kvstore.Open(path)
	if err != nil {
		return nil, errs.New(errs.WalletIO, "Load", err)
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

	kind, parentID, walletID, rootAsset, mainAccountID, err := store.loadHeader()
	if err != nil {
		return nil, err
	}

	w := newWallet(store, ctr)
	w.Kind = Kind(kind)
	w.ParentID = parentID
	w.ID = walletID
	w.IDString = walletIDString
	w.RootAsset = rootAsset
	w.MainAccountID = mainAccountID

	commentsAcct, err := store.loadMetaAccount(account.Comments)
	if err != nil {
		return nil, err
	}
	authPeersAcct, err := store.loadMetaAccount(account.AuthPeers)
	if err != nil {
		return nil, err
	}
	w.MetaAccounts[account.Comments] = commentsAcct
	w.MetaAccounts[account.AuthPeers] = authPeersAcct

	return w, nil
}
