package wallet

import (
	"crypto/rand"
	"path/filepath"
	"time"

	"github.com/tyler-smith/go-bip39"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/bip32"
	"github.com/coredge/hdvault/internal/cipher"
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/decryptdata"
	"github.com/coredge/hdvault/internal/derivation"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/kdf"
	"github.com/coredge/hdvault/internal/kvstore"
	"github.com/coredge/hdvault/internal/secretbytes"
)

// defaultRetryBudget bounds wrong-passphrase attempts per rolling minute
// before populateEncryptionKey gives up (spec.md section 4.C6).
const defaultRetryBudget = 10

// calibrationTarget is the per-derive compute budget new wallets
// calibrate their KDF against.
const calibrationTarget = 250 * time.Millisecond

// CreateOptions configures one of the four creation scaffolds. Exactly
// one of Seed/PrivateRootXprv/PublicRootXpub must be supplied by the
// specific entry point calling into createWallet; CreateOptions itself
// only carries the shared knobs every scaffold needs.
type CreateOptions struct {
	Kind Kind

	// Passphrase, if non-empty, wraps the new master key under a
	// calibrated KDF. If empty, the wallet uses the cleartext default
	// key instead (spec.md section 4.C6).
	Passphrase []byte

	// NumAccounts is not read by makeAccounts: the number of
	// BIP32Custom/BIP32Salted accounts follows CustomNodeIndices, and the
	// fixed-shape kinds (Armory135, legacy, segwit, ECDH) always get
	// their fixed accounts.
	NumAccounts int

	// CustomNodeIndices supplies the caller's own account node indices
	// for BIP32Custom/BIP32Salted; if empty, a single imports-account
	// (id 0xFFFFFFFF) is created instead.
	CustomNodeIndices []uint32

	// Salt is required for BIP32Salted and ignored otherwise.
	Salt []byte
}

// CreateFromSeed implements spec.md section 4.C14's createFromSeed: the
// common scaffold driven from raw entropy (e.g. a BIP-39 seed).
func CreateFromSeed(datadir string, seed []byte, opts CreateOptions) (*Wallet, error) {
	master, err := bip32.InitFromSeed(seed)
	if err != nil {
		return nil, errs.New(errs.Derivation, "CreateFromSeed", err)
	}
	return createWallet(datadir, master, true, opts)
}

// CreateFromMnemonic wraps CreateFromSeed with a BIP-39 mnemonic-to-seed
// conversion, the domain-stack entry point SPEC_FULL.md's ambient-stack
// section wires go-bip39 into.
func CreateFromMnemonic(datadir, mnemonic, mnemonicPassphrase string, opts CreateOptions) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errs.New(errs.Derivation, "CreateFromMnemonic", errInvalidMnemonic)
	}
	seed := bip39.NewSeed(mnemonic, mnemonicPassphrase)
	return CreateFromSeed(datadir, seed, opts)
}

// CreateFromPrivateRootArmory135 implements createFromPrivateRoot_Armory135:
// the caller already holds a root private key and (for BIP-32 kinds) its
// chaincode; this entry point rebuilds the master node directly instead
// of hashing a seed.
func CreateFromPrivateRootArmory135(datadir string, rootPriv, chainCode []byte, opts CreateOptions) (*Wallet, error) {
	pub, err := cryptoadapter.Secp256k1PubkeyFromPriv(rootPriv)
	if err != nil {
		return nil, errs.New(errs.Derivation, "CreateFromPrivateRootArmory135", err)
	}
	compressed, err := cryptoadapter.PointCompress(pub)
	if err != nil {
		return nil, errs.New(errs.Derivation, "CreateFromPrivateRootArmory135", err)
	}
	master := &bip32.Node{ChainCode: chainCode, PrivKey: rootPriv, PubKey: compressed}
	return createWallet(datadir, master, true, opts)
}

// CreateFromBase58 implements createFromBase58: import a single
// already-derived node (xprv or xpub) encoded per internal/bip32's
// Base58Check format. A loaded node is treated as the account-level
// node directly (no further hardened account derivation), producing one
// BIP32Custom account tagged with the imports sentinel.
func CreateFromBase58(datadir, encoded string, opts CreateOptions) (*Wallet, error) {
	node, err := bip32.DecodeBase58(encoded)
	if err != nil {
		return nil, errs.New(errs.Derivation, "CreateFromBase58", err)
	}
	opts.Kind = KindBIP32Custom
	return createWallet(datadir, node, node.PrivKey != nil, opts)
}

// CreateFromPublicRootArmory135 implements createFromPublicRoot_Armory135:
// a watching-only wallet built from a bare public root plus chaincode,
// never carrying any private key.
func CreateFromPublicRootArmory135(datadir string, rootPub, chainCode []byte, opts CreateOptions) (*Wallet, error) {
	master := &bip32.Node{ChainCode: chainCode, PubKey: rootPub}
	return createWallet(datadir, master, false, opts)
}

// createWallet is the common scaffold every entry point above funnels
// into: derive the wallet id, create the on-disk file, initialise the
// meta DB, create the root asset, install the KDF/master key, create
// the requested accounts, extend each account's look-ahead, and persist
// everything (spec.md section 4.C14).
func createWallet(datadir string, master *bip32.Node, hasPriv bool, opts CreateOptions) (*Wallet, error) {
	var armoryScheme *derivation.Armory135Scheme
	var walletIDRaw []byte
	var walletIDString string
	var err error

	if opts.Kind == KindArmory135 {
		armoryScheme = derivation.NewArmory135Scheme(master.ChainCode)
		walletIDRaw, walletIDString, err = deriveWalletIDArmory135(armoryScheme, master.PubKey)
		if err != nil {
			return nil, err
		}
	} else {
		tag := schemeTagFor(opts.Kind)
		walletIDRaw, walletIDString = deriveWalletIDBIP32(master.PubKey, tag)
	}

	path := filepath.Join(datadir, walletIDString+".wallet")
	kv, err := kvstore.Open(path)
	if err != nil {
		return nil, errs.New(errs.WalletIO, "createWallet", err)
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

	w := newWallet(store, ctr)
	w.ID = walletIDRaw
	w.IDString = walletIDString
	w.Kind = opts.Kind
	w.VersionMajor, w.VersionMinor, w.VersionRevision = 1, 0, 0

	rootUncompressed, err := cryptoadapter.PointUncompress(master.PubKey)
	if err != nil {
		return nil, errs.New(errs.Derivation, "createWallet", err)
	}
	rootMeta := &asset.RootMeta{ChainCode: master.ChainCode, Depth: master.Depth, ParentFingerprint: master.ParentFingerprint}
	if hasPriv {
		w.RootAsset = asset.NewWithPrivateKey(0, append([]byte{}, walletIDRaw...), rootUncompressed, &cipher.PrivateKeyContainer{Unencrypted: true, Raw: master.PrivKey})
		w.RootAsset.Root = rootMeta
	} else {
		w.RootAsset = asset.NewWatchingOnly(0, append([]byte{}, walletIDRaw...), rootUncompressed)
		w.RootAsset.Root = rootMeta
	}

	if err := installMasterKey(w, opts.Passphrase); err != nil {
		return nil, err
	}

	accounts, mainID, err := makeAccounts(opts.Kind, master, armoryScheme, walletIDRaw, w.MasterKeyID, w.DefaultKDFID, opts)
	if err != nil {
		return nil, err
	}
	w.MainAccountID = mainID
	for _, aa := range accounts {
		w.registerAccount(aa)
		if err := aa.Outer.ExtendPublicChain(account.DefaultLookAhead - 1); err != nil {
			return nil, err
		}
		if aa.Inner != aa.Outer {
			if err := aa.Inner.ExtendPublicChain(account.DefaultLookAhead - 1); err != nil {
				return nil, err
			}
		}
	}

	w.MetaAccounts[account.Comments] = account.NewMetadataAccount(account.Comments)
	w.MetaAccounts[account.AuthPeers] = account.NewMetadataAccount(account.AuthPeers)

	if err := persistNewWallet(w); err != nil {
		return nil, err
	}
	return w, nil
}

// installMasterKey implements the "install the KDF + master key" step:
// either a passphrase-wrapped master key, or the cleartext default key
// when passphrase is empty (spec.md section 4.C6).
func installMasterKey(w *Wallet, passphrase []byte) error {
	if len(passphrase) == 0 {
		keyID := make([]byte, decryptdata.KeyIDLen)
		if _, err := rand.Read(keyID); err != nil {
			return errs.New(errs.Crypto, "installMasterKey", err)
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return errs.New(errs.Crypto, "installMasterKey", err)
		}
		w.DefaultKeyID = keyID
		w.MasterKeyID = keyID
		w.Container.DefaultKeyID = keyID
		w.Container.DefaultKey = secretbytes.New(key)
		if err := w.store.putDefaultKey(keyID, key); err != nil {
			return err
		}
		for i := range key {
			key[i] = 0
		}
		return nil
	}

	params, err := kdf.Calibrate(calibrationTarget)
	if err != nil {
		return err
	}
	wrapKey, err := params.Derive(passphrase)
	if err != nil {
		return err
	}
	wrapKeyID := decryptdata.ComputeKeyID(wrapKey, params.KdfID)

	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		return errs.New(errs.Crypto, "installMasterKey", err)
	}
	masterKeyID := decryptdata.ComputeKeyID(masterKey, params.KdfID)

	ciph, err := cipher.New(params.KdfID, wrapKeyID)
	if err != nil {
		return err
	}
	ciphertext, err := ciph.Encrypt(wrapKey, masterKey)
	if err != nil {
		return errs.New(errs.Crypto, "installMasterKey", err)
	}
	ek := cipher.NewEncryptedKey(masterKeyID, wrapKeyID, &cipher.CipherData{Ciphertext: ciphertext, Cipher: ciph})

	w.MasterKeyID = masterKeyID
	w.DefaultKDFID = params.KdfID
	w.Container.RegisterKDFParams(params)
	w.Container.RegisterEncryptedKey(ek)

	if err := w.store.putKDFParams(params); err != nil {
		return err
	}
	if err := w.store.putEncryptedKey(ek); err != nil {
		return err
	}
	for i := range wrapKey {
		wrapKey[i] = 0
	}
	for i := range masterKey {
		masterKey[i] = 0
	}
	return nil
}

// persistNewWallet flushes a freshly-built wallet to disk in full: the
// header record (which carries the root asset), every
// registered account's computed assets and counters, and both seeded
// meta accounts. Nothing about createWallet's in-memory result depends
// on disk order, so each piece is written in its own transaction.
func persistNewWallet(w *Wallet) error {
	if err := w.store.putHeader(w); err != nil {
		return err
	}
	seen := map[string]*account.AssetAccount{}
	for _, aa := range w.AddressAccounts {
		seen[string(aa.Outer.ID)] = aa.Outer
		seen[string(aa.Inner.ID)] = aa.Inner
	}
	for fullID, aacct := range seen {
		snapshot := aacct.Snapshot()
		for _, as := range snapshot {
			if err := w.store.putAsset([]byte(fullID), as); err != nil {
				return err
			}
		}
		if err := w.store.putAssetCounters([]byte(fullID), uint32(len(snapshot)), aacct.HighestUsedIndex()); err != nil {
			return err
		}
	}
	for kind, ma := range w.MetaAccounts {
		if err := w.store.putMetaAccount([]byte{byte(kind)}, ma); err != nil {
			return err
		}
	}
	return nil
}

func schemeTagFor(k Kind) byte {
	switch k {
	case KindBIP32Salted:
		return derivation.TagBIP32Salt
	case KindECDH:
		return derivation.TagECDH
	default:
		return derivation.TagBIP32
	}
}

var errInvalidMnemonic = mnemonicErr("invalid BIP-39 mnemonic")

type mnemonicErr string

func (e mnemonicErr) Error() string { return string(e) }
