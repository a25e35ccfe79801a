package decryptdata

import (
	"github.com/coredge/hdvault/internal/cipher"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/kdf"
)

// RotationPersister is the crash-safe 3-transaction commit protocol
// from spec.md section 4.C6 step 6, backed by the wallet's KV store:
// write to the temp slot (0xCC) in txn A, delete-old+write-new primary
// (0xC0) in txn B, delete the temp slot in txn C.
type RotationPersister interface {
	WriteTempEncryptedKey(ek *cipher.EncryptedKey) error
	CommitPrimaryEncryptedKey(ek *cipher.EncryptedKey) error
	DeleteTempEncryptedKey(keyID []byte) error
}

// RotateMasterPassphrase implements spec.md section 4.C6's
// rotateMasterPassphrase. oldWrapKeyID identifies the ciphertext to drop
// when replace is true (the wrapping the caller authenticated with);
// ignored when replace is false, in which case the new wrapping is
// appended alongside every existing one (addPassphrase's path).
func (c *Container) RotateMasterPassphrase(
	tok *LockToken,
	masterKeyID []byte,
	oldWrapKeyID []byte,
	newKdf *kdf.Params,
	newPassphrase []byte,
	replace bool,
	persister RotationPersister,
) error {
	release, err := c.SingleLock(tok)
	if err != nil {
		return err
	}
	defer release()

	ek, ok := c.lookupEncryptedKey(masterKeyID)
	if !ok {
		return errs.New(errs.Encryption, "RotateMasterPassphrase", errs.ErrKeyUnavailable)
	}

	if err := c.populateEncryptionKey(map[string][]byte{string(masterKeyID): nil}); err != nil {
		return err
	}
	masterKey, ok := c.decryptedEncryptionKeys[string(masterKeyID)]
	if !ok {
		return errs.New(errs.Encryption, "RotateMasterPassphrase", errs.ErrKeyUnavailable)
	}

	newWrapKey, err := newKdf.Derive(newPassphrase)
	if err != nil {
		return errs.New(errs.Crypto, "RotateMasterPassphrase", err)
	}
	newKeyID := ComputeKeyID(newWrapKey, newKdf.KdfID)

	newCipher, err := cipher.New(newKdf.KdfID, newKeyID)
	if err != nil {
		return err
	}
	ciphertext, err := newCipher.Encrypt(newWrapKey, masterKey.Bytes())
	if err != nil {
		return errs.New(errs.Crypto, "RotateMasterPassphrase", err)
	}
	newCipherData := &cipher.CipherData{Ciphertext: ciphertext, Cipher: newCipher}

	updated := &cipher.EncryptedKey{ID: ek.ID, Ciphertexts: map[string]*cipher.CipherData{}}
	for k, v := range ek.Ciphertexts {
		updated.Ciphertexts[k] = v
	}
	if replace && oldWrapKeyID != nil {
		delete(updated.Ciphertexts, string(oldWrapKeyID))
	}
	updated.Ciphertexts[string(newKeyID)] = newCipherData

	// Crash-safe commit: temp slot, then primary swap, then temp cleanup.
	if err := persister.WriteTempEncryptedKey(updated); err != nil {
		return errs.New(errs.WalletIO, "RotateMasterPassphrase", err)
	}
	if err := persister.CommitPrimaryEncryptedKey(updated); err != nil {
		return errs.New(errs.WalletIO, "RotateMasterPassphrase", err)
	}
	if err := persister.DeleteTempEncryptedKey(updated.ID); err != nil {
		return errs.New(errs.WalletIO, "RotateMasterPassphrase", err)
	}

	c.encKeyCache[string(updated.ID)] = updated
	for i := range newWrapKey {
		newWrapKey[i] = 0
	}
	return nil
}
