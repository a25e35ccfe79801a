// Package wallet implements the top-level Wallet entity from spec.md
// section 4.C14: wallet id, parent id, meta accounts, address accounts,
// main-account pointer, root asset, and the KDF/master-key registry
// tying everything to a single decryptdata.Container. Grounded on the
// teacher's wallet.go/storage.go (now folded into internal/cryptoadapter,
// internal/kvstore and internal/cipher) for the "one struct, one mutex,
// one file" shape, generalised into the multi-account, multi-scheme tree
// spec.md describes; the on-disk layout follows section 6.2's prefix
// table literally.
package wallet

import (
	"encoding/binary"

	"github.com/coredge/hdvault/internal/account"
	"github.com/coredge/hdvault/internal/asset"
	"github.com/coredge/hdvault/internal/cipher"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/kdf"
	"github.com/coredge/hdvault/internal/kvstore"
)

// Key prefixes, spec.md section 6.2.
const (
	prefixWalletMeta     byte = 0xB0
	prefixWalletType     byte = 0x01
	prefixParentID       byte = 0x02
	prefixWalletID       byte = 0x03
	prefixRootAsset      byte = 0x07
	prefixMainAccountID  byte = 0x08
	prefixAddressAccount byte = 0xD0
	prefixAssetAccount   byte = 0xE1
	prefixAssetCount     byte = 0xE2
	prefixLastUsedIndex  byte = 0xE3
	prefixAssetEntry     byte = 0xE4
	prefixEncKeyPrimary  byte = 0xC0
	prefixEncKeyTemp     byte = 0xCC
	prefixKDFParams      byte = 0xC1
	prefixMetaAccount    byte = 0xF1
	prefixDefaultKey     byte = 0xB1
)

const walletSubDB = "wallet"

// walletStore wraps a kvstore.Store with the wallet's own key layout. It
// implements decryptdata.Loader (so the container can fault in KDF
// params and encrypted keys it hasn't cached) and
// decryptdata.RotationPersister (the crash-safe 3-transaction
// master-passphrase rotation from spec.md section 4.C6 step 6).
type walletStore struct {
	kv *kvstore.Store
}

func newWalletStore(kv *kvstore.Store) *walletStore { return &walletStore{kv: kv} }

func keyWithID(prefix byte, id []byte) []byte { return append([]byte{prefix}, id...) }

// --- decryptdata.Loader ---

func (s *walletStore) LoadEncryptedKey(keyID []byte) (*cipher.EncryptedKey, bool, error) {
	var out *cipher.EncryptedKey
	found := false
	err := s.kv.View(func(tx *kvstore.Tx) error {
		v, ok, err := tx.Get(walletSubDB, keyWithID(prefixEncKeyPrimary, keyID))
		if err != nil || !ok {
			return err
		}
		ek, err := cipher.DeserializeEncryptedKey(v)
		if err != nil {
			return err
		}
		out, found = ek, true
		return nil
	})
	if err != nil {
		return nil, false, errs.New(errs.WalletIO, "walletStore.LoadEncryptedKey", err)
	}
	return out, found, nil
}

func (s *walletStore) LoadKDFParams(kdfID []byte) (*kdf.Params, bool, error) {
	var out *kdf.Params
	found := false
	err := s.kv.View(func(tx *kvstore.Tx) error {
		v, ok, err := tx.Get(walletSubDB, keyWithID(prefixKDFParams, kdfID))
		if err != nil || !ok {
			return err
		}
		p, err := kdf.Deserialize(v)
		if err != nil {
			return err
		}
		out, found = p, true
		return nil
	})
	if err != nil {
		return nil, false, errs.New(errs.WalletIO, "walletStore.LoadKDFParams", err)
	}
	return out, found, nil
}

// --- decryptdata.RotationPersister ---

func (s *walletStore) WriteTempEncryptedKey(ek *cipher.EncryptedKey) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		return tx.Put(walletSubDB, keyWithID(prefixEncKeyTemp, ek.ID), ek.Serialize())
	})
}

func (s *walletStore) CommitPrimaryEncryptedKey(ek *cipher.EncryptedKey) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		if err := tx.Delete(walletSubDB, keyWithID(prefixEncKeyPrimary, ek.ID)); err != nil {
			return err
		}
		return tx.Put(walletSubDB, keyWithID(prefixEncKeyPrimary, ek.ID), ek.Serialize())
	})
}

func (s *walletStore) DeleteTempEncryptedKey(keyID []byte) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		return tx.Wipe(walletSubDB, keyWithID(prefixEncKeyTemp, keyID))
	})
}

// putKDFParams / putEncryptedKey install a brand-new record directly,
// used at wallet-creation time (no rotation protocol needed for the
// very first master key).
func (s *walletStore) putKDFParams(p *kdf.Params) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		return tx.Put(walletSubDB, keyWithID(prefixKDFParams, p.KdfID), p.Serialize())
	})
}

func (s *walletStore) putEncryptedKey(ek *cipher.EncryptedKey) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		return tx.Put(walletSubDB, keyWithID(prefixEncKeyPrimary, ek.ID), ek.Serialize())
	})
}

// putDefaultKey persists the cleartext default-encryption-key record
// used when a wallet carries no passphrase (spec.md section 4.C6: "a
// random 32 bytes stored in cleartext on disk").
func (s *walletStore) putDefaultKey(keyID, key []byte) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		return tx.Put(walletSubDB, keyWithID(prefixDefaultKey, keyID), key)
	})
}

func (s *walletStore) loadDefaultKey(keyID []byte) ([]byte, bool, error) {
	var out []byte
	found := false
	err := s.kv.View(func(tx *kvstore.Tx) error {
		v, ok, err := tx.Get(walletSubDB, keyWithID(prefixDefaultKey, keyID))
		if err != nil || !ok {
			return err
		}
		out, found = append([]byte{}, v...), true
		return nil
	})
	if err != nil {
		return nil, false, errs.New(errs.WalletIO, "walletStore.loadDefaultKey", err)
	}
	return out, found, nil
}

// putHeader writes the fixed header records (type, parent id, wallet id,
// root asset, main-account id) in one transaction.
func (s *walletStore) putHeader(w *Wallet) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		var typeBuf [4]byte
		binary.LittleEndian.PutUint32(typeBuf[:], uint32(w.Kind))
		if err := tx.Put(walletSubDB, []byte{prefixWalletType}, typeBuf[:]); err != nil {
			return err
		}
		if err := tx.Put(walletSubDB, []byte{prefixParentID}, w.ParentID); err != nil {
			return err
		}
		if err := tx.Put(walletSubDB, []byte{prefixWalletID}, w.ID); err != nil {
			return err
		}
		if err := tx.Put(walletSubDB, []byte{prefixRootAsset}, w.RootAsset.Serialize()); err != nil {
			return err
		}
		return tx.Put(walletSubDB, []byte{prefixMainAccountID}, accountIDBytes(w.MainAccountID))
	})
}

// putAsset persists one asset under its full account id and index.
func (s *walletStore) putAsset(fullAccountID []byte, as *asset.Asset) error {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], as.Index)
	key := append(append([]byte{prefixAssetEntry}, fullAccountID...), idx[:]...)
	return s.kv.Update(func(tx *kvstore.Tx) error {
		return tx.Put(walletSubDB, key, as.Serialize())
	})
}

// putAssetCounters persists the asset-account's high-watermark counters.
func (s *walletStore) putAssetCounters(fullAccountID []byte, assetCount uint32, lastUsedIndex int64) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		var countBuf [4]byte
		binary.LittleEndian.PutUint32(countBuf[:], assetCount)
		if err := tx.Put(walletSubDB, keyWithID(prefixAssetCount, fullAccountID), countBuf[:]); err != nil {
			return err
		}
		var lastBuf [8]byte
		binary.LittleEndian.PutUint64(lastBuf[:], uint64(lastUsedIndex))
		return tx.Put(walletSubDB, keyWithID(prefixLastUsedIndex, fullAccountID), lastBuf[:])
	})
}

// putMetaAccount persists a MetadataAccount's kind tag and flushes its
// pending entries, per spec.md section 4.C13's "commit writes only
// flagged entries; entries whose serialize() returns empty are deleted".
func (s *walletStore) putMetaAccount(metaID []byte, ma *account.MetadataAccount) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		if err := tx.Put(walletSubDB, keyWithID(prefixMetaAccount, metaID), []byte{byte(ma.Kind)}); err != nil {
			return err
		}
		for _, entry := range ma.PendingCommits() {
			key := append(append([]byte{}, metaID...), entry.DBKey(ma.Kind)...)
			if len(entry.Serialize()) == 0 {
				if err := tx.Delete(walletSubDB, key); err != nil {
					return err
				}
				continue
			}
			if err := tx.Put(walletSubDB, key, entry.Serialize()); err != nil {
				return err
			}
		}
		return nil
	})
}

// overridesSubDB holds the assetId -> type-u32 script-type override
// records putOverride/deleteOverride write (spec.md section 4.C11).
// Records are keyed by the raw asset id inside this dedicated sub-DB,
// not by account.OverrideKey's (0xC0 || assetId) form, so they never
// share walletSubDB with the 0xC0 primary-encryption-key records.
// AddressAccount keeps its overrides in memory; nothing in this package
// calls putOverride or deleteOverride.
const overridesSubDB = "overrides"

func (s *walletStore) putOverride(assetID []byte, scriptType byte) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		return tx.Put(overridesSubDB, assetID, account.EncodeOverrideValue(scriptType))
	})
}

func (s *walletStore) deleteOverride(assetID []byte) error {
	return s.kv.Update(func(tx *kvstore.Tx) error {
		return tx.Delete(overridesSubDB, assetID)
	})
}

// loadHeader reads back the fixed header records putHeader wrote.
func (s *walletStore) loadHeader() (kind uint32, parentID, walletID []byte, rootAsset *asset.Asset, mainAccountID uint32, err error) {
	err = s.kv.View(func(tx *kvstore.Tx) error {
		v, ok, err := tx.Get(walletSubDB, []byte{prefixWalletType})
		if err != nil {
			return err
		}
		if ok && len(v) == 4 {
			kind = binary.LittleEndian.Uint32(v)
		}
		if v, ok, err = tx.Get(walletSubDB, []byte{prefixParentID}); err != nil {
			return err
		} else if ok {
			parentID = append([]byte{}, v...)
		}
		if v, ok, err = tx.Get(walletSubDB, []byte{prefixWalletID}); err != nil {
			return err
		} else if ok {
			walletID = append([]byte{}, v...)
		}
		if v, ok, err = tx.Get(walletSubDB, []byte{prefixRootAsset}); err != nil {
			return err
		} else if ok {
			rootAsset, err = asset.Deserialize(v)
			if err != nil {
				return err
			}
		}
		if v, ok, err = tx.Get(walletSubDB, []byte{prefixMainAccountID}); err != nil {
			return err
		} else if ok && len(v) == 4 {
			mainAccountID = binary.BigEndian.Uint32(v)
		}
		return nil
	})
	if err != nil {
		err = errs.New(errs.WalletIO, "walletStore.loadHeader", err)
	}
	return
}

// loadMetaAccount replays every entry filed under kind's prefix,
// implementing the prefix-scan-on-open spec.md section 4.C13 describes.
func (s *walletStore) loadMetaAccount(kind account.MetaKind) (*account.MetadataAccount, error) {
	ma := account.NewMetadataAccount(kind)
	metaID := []byte{byte(kind)}
	prefix := append(append([]byte{}, metaID...), metaID...)
	err := s.kv.View(func(tx *kvstore.Tx) error {
		cur, err := tx.Cursor(walletSubDB)
		if err != nil {
			return err
		}
		key, value, ok := cur.SeekGE(prefix)
		for ok {
			if len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
				break
			}
			ma.ReplayRecord(key[len(metaID):], value)
			key, value, ok = cur.Advance()
		}
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.WalletIO, "walletStore.loadMetaAccount", err)
	}
	return ma, nil
}
