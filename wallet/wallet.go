package wallet

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/address"
	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/decryptdata"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/kdf"
)

// LockToken mirrors account.LockToken/decryptdata.LockToken's
// holder-token identity scheme for the Wallet's own reentrant lock, a
// third independent Lockable entity per spec.md section 5.
type LockToken struct{}

// Wallet implements spec.md section 4.C14: the top-level entity tying a
// root asset, one or more address accounts, metadata accounts, and the
// KDF/encryption-key registry together behind a single decrypted-data
// container. Grounded on the teacher's wallet.go (one struct owning its
// own mutex and its own file) generalised into the multi-account tree
// spec.md describes.
type Wallet struct {
	mu     sync.Mutex
	cond   *sync.Cond
	holder *LockToken
	depth  int

	ParentID []byte
	ID       []byte // raw wallet id (6 bytes, walletIDLen)
	IDString string // Base58 rendering of ID
	Kind     Kind

	VersionMajor, VersionMinor, VersionRevision uint32

	RootAsset     *asset.Asset
	MainAccountID uint32

	AddressAccounts map[uint32]*account.AddressAccount
	MetaAccounts    map[account.MetaKind]*account.MetadataAccount

	DefaultKeyID []byte
	DefaultKDFID []byte
	MasterKeyID  []byte

	Container *decryptdata.Container
	Network   address.Network

	store *walletStore

	assetAccountsByFullID  map[string]*account.AssetAccount
	addressAccountByFullID map[string]*account.AddressAccount
}

func newWallet(store *walletStore, ctr *decryptdata.Container) *Wallet {
	w := &Wallet{
		AddressAccounts:        map[uint32]*account.AddressAccount{},
		MetaAccounts:           map[account.MetaKind]*account.MetadataAccount{},
		Container:              ctr,
		Network:                address.Mainnet,
		store:                  store,
		assetAccountsByFullID:  map[string]*account.AssetAccount{},
		addressAccountByFullID: map[string]*account.AddressAccount{},
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Lock acquires the wallet's own reentrant lock, independent of any
// AssetAccount or decryptdata.Container lock a caller may also hold.
func (w *Wallet) Lock(tok *LockToken) (*LockToken, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if tok != nil && w.holder == tok {
		w.depth++
		return tok, func() { w.unlock(tok) }
	}
	for w.holder != nil {
		w.cond.Wait()
	}
	newTok := &LockToken{}
	w.holder = newTok
	w.depth = 1
	return newTok, func() { w.unlock(newTok) }
}

func (w *Wallet) unlock(tok *LockToken) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.holder != tok {
		return
	}
	w.depth--
	if w.depth == 0 {
		w.holder = nil
		w.cond.Broadcast()
	}
}

// registerAccount wires an AddressAccount into the wallet's lookup
// tables, indexing both its outer and inner AssetAccount by their full
// (wallet||account) id so asset/address lookups can find the owner in
// constant time.
func (w *Wallet) registerAccount(aa *account.AddressAccount) {
	w.AddressAccounts[binary.BigEndian.Uint32(aa.ID)] = aa
	w.assetAccountsByFullID[string(aa.Outer.ID)] = aa.Outer
	w.addressAccountByFullID[string(aa.Outer.ID)] = aa
	if aa.Inner != aa.Outer {
		w.assetAccountsByFullID[string(aa.Inner.ID)] = aa.Inner
		w.addressAccountByFullID[string(aa.Inner.ID)] = aa
	}
}

// GetNewAddress implements getNewAddress(accountId, type?), delegating
// to the named account's outer asset account.
func (w *Wallet) GetNewAddress(accountID uint32, scriptType *byte) (*asset.Asset, byte, error) {
	aa, ok := w.AddressAccounts[accountID]
	if !ok {
		return nil, 0, errs.New(errs.Account, "Wallet.GetNewAddress", errs.ErrUnknownAddress)
	}
	return aa.GetNewAddress(scriptType)
}

// GetNewChangeAddress implements getNewChangeAddress(accountId, type?).
func (w *Wallet) GetNewChangeAddress(accountID uint32, scriptType *byte) (*asset.Asset, byte, error) {
	aa, ok := w.AddressAccounts[accountID]
	if !ok {
		return nil, 0, errs.New(errs.Account, "Wallet.GetNewChangeAddress", errs.ErrUnknownAddress)
	}
	return aa.GetNewChangeAddress(scriptType)
}

// ExtendPublicChain implements extendPublicChain(accountId, n): extends
// both the named account's outer and inner asset accounts n indices
// beyond their own current public frontier.
func (w *Wallet) ExtendPublicChain(accountID uint32, n int) error {
	aa, ok := w.AddressAccounts[accountID]
	if !ok {
		return errs.New(errs.Account, "Wallet.ExtendPublicChain", errs.ErrUnknownAddress)
	}
	if err := aa.Outer.ExtendPublicChain(n); err != nil {
		return err
	}
	if aa.Inner != aa.Outer {
		return aa.Inner.ExtendPublicChain(n)
	}
	return nil
}

// ExtendPrivateChain implements extendPrivateChain(accountId, n):
// extends both the named account's outer and inner asset accounts n
// indices beyond their own current private-fill frontier, under the
// container's decrypted scope.
func (w *Wallet) ExtendPrivateChain(accountID uint32, n int) error {
	aa, ok := w.AddressAccounts[accountID]
	if !ok {
		return errs.New(errs.Account, "Wallet.ExtendPrivateChain", errs.ErrUnknownAddress)
	}
	tok, release := w.LockDecryptedContainer()
	defer release()
	if err := aa.Outer.ExtendPrivateChain(tok, w.Container, w.RootAsset, n); err != nil {
		return err
	}
	if aa.Inner != aa.Outer {
		return aa.Inner.ExtendPrivateChain(tok, w.Container, w.RootAsset, n)
	}
	return nil
}

// ExtendPrivateChainToIndex implements extendPrivateChainToIndex(accountId,
// target): fills both the named account's outer and inner asset
// accounts with private keys through target, overwriting any
// public-only asset already at or below target along the way.
func (w *Wallet) ExtendPrivateChainToIndex(accountID uint32, target uint32) error {
	aa, ok := w.AddressAccounts[accountID]
	if !ok {
		return errs.New(errs.Account, "Wallet.ExtendPrivateChainToIndex", errs.ErrUnknownAddress)
	}
	tok, release := w.LockDecryptedContainer()
	defer release()
	if err := aa.Outer.ExtendPrivateChainToIndex(tok, w.Container, w.RootAsset, target); err != nil {
		return err
	}
	if aa.Inner != aa.Outer {
		return aa.Inner.ExtendPrivateChainToIndex(tok, w.Container, w.RootAsset, target)
	}
	return nil
}

// fullAccountIDPrefixLen is the width of (walletId || accountId) that
// prefixes every full asset id in this wallet.
func (w *Wallet) fullAccountIDPrefixLen() int { return len(w.ID) + 4 }

// GetAssetForID implements getAssetForId: locate the asset account
// owning assetId's (wallet||account) prefix, then its index suffix.
func (w *Wallet) GetAssetForID(assetID []byte) (*asset.Asset, error) {
	prefixLen := w.fullAccountIDPrefixLen()
	if len(assetID) < prefixLen+4 {
		return nil, errs.New(errs.Account, "Wallet.GetAssetForID", errs.ErrUnknownAddress)
	}
	aacct, ok := w.assetAccountsByFullID[string(assetID[:prefixLen])]
	if !ok {
		return nil, errs.New(errs.Account, "Wallet.GetAssetForID", errs.ErrUnknownAddress)
	}
	index := binary.BigEndian.Uint32(assetID[prefixLen : prefixLen+4])
	as, ok := aacct.Asset(index)
	if !ok {
		return nil, errs.New(errs.Account, "Wallet.GetAssetForID", errs.ErrUnknownAddress)
	}
	return as, nil
}

// GetAddressEntryForID implements getAddressEntryForID: the asset's
// address, rendered under whatever script type its owning
// AddressAccount currently has in effect (override or default).
func (w *Wallet) GetAddressEntryForID(assetID []byte) (*address.Entry, byte, error) {
	as, err := w.GetAssetForID(assetID)
	if err != nil {
		return nil, 0, err
	}
	prefixLen := w.fullAccountIDPrefixLen()
	addrAcct, ok := w.addressAccountByFullID[string(assetID[:prefixLen])]
	if !ok {
		return nil, 0, errs.New(errs.Account, "Wallet.GetAddressEntryForID", errs.ErrUnknownAddress)
	}
	t := addrAcct.TypeFor(assetID)
	entry, err := address.ForAsset(as, address.ScriptType(t), w.Network)
	if err != nil {
		return nil, 0, err
	}
	return entry, t, nil
}

// GetAssetIDForAddr implements getAssetIdForAddr: decode addr into its
// prefixed hash, then probe every owned account's hash map for a match,
// returning the id of the first matching asset.
func (w *Wallet) GetAssetIDForAddr(addr string) ([]byte, error) {
	target, err := decodeAddressToPrefixedHash(addr, w.Network)
	if err != nil {
		return nil, err
	}
	hashFor := func(as *asset.Asset, t byte) ([]byte, error) {
		e, err := address.ForAsset(as, address.ScriptType(t), w.Network)
		if err != nil {
			return nil, err
		}
		return e.PrefixedHash, nil
	}
	for _, aa := range w.AddressAccounts {
		types := permittedTypesSlice(aa.PermittedTypes)
		for _, acct := range []*account.AssetAccount{aa.Outer, aa.Inner} {
			hashMap, err := acct.GetAddressHashMap(types, hashFor)
			if err != nil {
				continue
			}
			for idHex, byType := range hashMap {
				for _, h := range byType {
					if string(h) == string(target) {
						return []byte(idHex), nil
					}
				}
			}
		}
	}
	return nil, errs.New(errs.Account, "Wallet.GetAssetIDForAddr", errs.ErrUnknownAddress)
}

// Accounts returns every AddressAccount registered on this wallet, for
// callers (such as a resolver feed) that need to range over the whole
// account tree rather than look up one account by id.
func (w *Wallet) Accounts() []*account.AddressAccount {
	out := make([]*account.AddressAccount, 0, len(w.AddressAccounts))
	for _, aa := range w.AddressAccounts {
		out = append(out, aa)
	}
	return out
}

// SaveMetaAccount flushes kind's pending commits to disk, used by
// callers that mutate a MetadataAccount through a higher-level
// projection (such as peers.AuthorizedPeers) and need the change
// durable afterward.
func (w *Wallet) SaveMetaAccount(kind account.MetaKind) error {
	ma, ok := w.MetaAccounts[kind]
	if !ok {
		return errs.New(errs.Account, "Wallet.SaveMetaAccount", errs.ErrMetaAccountMissing)
	}
	return w.store.putMetaAccount([]byte{byte(kind)}, ma)
}

func permittedTypesSlice(set map[byte]bool) []byte {
	out := make([]byte, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

// decodeAddressToPrefixedHash mirrors address.Entry's PrefixedHash
// layout (version-byte-prefixed for base58, 0x80|witnessVersion-prefixed
// for bech32) so a decoded address can be compared directly against the
// hash maps account.AssetAccount.GetAddressHashMap builds.
func decodeAddressToPrefixedHash(addr string, net address.Network) ([]byte, error) {
	if hrp, witnessVersion, program, err := cryptoadapter.Bech32Decode(addr); err == nil && hrp == net.Bech32HRP {
		return append([]byte{0x80 | witnessVersion}, program...), nil
	}
	payload, err := cryptoadapter.Base58DecodeCheck(addr)
	if err != nil {
		return nil, errs.New(errs.Account, "decodeAddressToPrefixedHash", errs.ErrUnknownAddress)
	}
	return payload, nil
}

// PushPasswordPrompt/PopPasswordPrompt delegate to the container's
// prompt stack, spec.md section 4.C14's pushPasswordPrompt/
// popPasswordPrompt.
func (w *Wallet) PushPasswordPrompt(fn decryptdata.PromptFunc) { w.Container.PushPrompt(fn) }
func (w *Wallet) PopPasswordPrompt()                           { w.Container.PopPrompt() }

// LockDecryptedContainer acquires the container's scope lock for the
// duration of a private-key operation spanning several calls.
func (w *Wallet) LockDecryptedContainer() (*decryptdata.LockToken, func()) {
	return w.Container.Lock(nil)
}

// AddPassphrase implements spec.md section 4.C14's addPassphrase:
// wraps the already-decrypted master key under an additional,
// freshly-calibrated KDF and passphrase, appending the new ciphertext
// without disturbing any existing one.
func (w *Wallet) AddPassphrase(passphrase []byte, calibrateTarget time.Duration) error {
	newKdf, err := kdf.Calibrate(calibrateTarget)
	if err != nil {
		return err
	}
	if err := w.Container.RotateMasterPassphrase(nil, w.MasterKeyID, nil, newKdf, passphrase, false, w.store); err != nil {
		return err
	}
	return w.store.putKDFParams(newKdf)
}

// ChangeMasterPassphrase implements changeMasterPassphrase: rotate.go's
// replace=true path, dropping oldWrapKeyID's ciphertext once the new one
// is safely committed (spec.md section 4.C6 step 6's 3-transaction
// protocol).
func (w *Wallet) ChangeMasterPassphrase(oldWrapKeyID, newPassphrase []byte, calibrateTarget time.Duration) error {
	newKdf, err := kdf.Calibrate(calibrateTarget)
	if err != nil {
		return err
	}
	if err := w.Container.RotateMasterPassphrase(nil, w.MasterKeyID, oldWrapKeyID, newKdf, newPassphrase, true, w.store); err != nil {
		return err
	}
	return w.store.putKDFParams(newKdf)
}
