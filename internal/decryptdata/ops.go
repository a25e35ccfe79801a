package decryptdata

import (
	"errors"

	"github.com/coredge/hdvault/internal/cipher"
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
	"github.com/coredge/hdvault/internal/kdf"
	"github.com/coredge/hdvault/internal/secretbytes"
)

// KeyIDLen is the truncation length applied to hash256(masterKey||kdfId)
// when computing an encryption key id (spec.md section 3).
const KeyIDLen = 20

// ComputeKeyID implements keyId = hash256(material || kdfId) truncated.
func ComputeKeyID(material, kdfID []byte) []byte {
	digest := cryptoadapter.DoubleSHA256(append(append([]byte{}, material...), kdfID...))
	return digest[:KeyIDLen]
}

// PrivateKeyed is the minimal surface getDecryptedPrivateData needs from
// an asset; asset.Asset implements it. Kept minimal to avoid asset <->
// decryptdata forming an import cycle (both would otherwise need cipher).
type PrivateKeyed interface {
	FullID() []byte
	PrivateKeyContainer() *cipher.PrivateKeyContainer
}

// GetDecryptedPrivateData implements spec.md section 4.C6's
// getDecryptedPrivateData: returns the plaintext private scalar for
// asset, decrypting and caching it under the current lock scope if
// necessary.
func (c *Container) GetDecryptedPrivateData(tok *LockToken, asset PrivateKeyed) (*secretbytes.SecretBytes, error) {
	c.metaMu.Lock()
	if c.holder != tok {
		c.metaMu.Unlock()
		return nil, errs.New(errs.Encryption, "GetDecryptedPrivateData", errAssetLockNotHeld)
	}
	c.metaMu.Unlock()

	idHex := string(asset.FullID())
	if cached, ok := c.decryptedPrivateKeys[idHex]; ok {
		return cached, nil
	}

	pk := asset.PrivateKeyContainer()
	if pk == nil {
		return nil, errs.New(errs.Encryption, "GetDecryptedPrivateData", errs.ErrPrivateKeyMissing)
	}
	if pk.Unencrypted {
		sb := secretbytes.New(pk.Raw)
		c.decryptedPrivateKeys[idHex] = sb
		return sb, nil
	}

	cd := pk.Data
	if err := c.populateEncryptionKey(map[string][]byte{string(cd.Cipher.EncryptionKeyID): cd.Cipher.KdfID}); err != nil {
		return nil, err
	}
	wrapKey, ok := c.decryptedEncryptionKeys[string(cd.Cipher.EncryptionKeyID)]
	if !ok {
		return nil, errs.New(errs.Encryption, "GetDecryptedPrivateData", errs.ErrKeyUnavailable)
	}
	plain, err := cd.Cipher.Decrypt(wrapKey.Bytes(), cd.Ciphertext)
	if err != nil {
		return nil, errs.New(errs.Encryption, "GetDecryptedPrivateData", errs.ErrCorruptCiphertext)
	}
	sb := secretbytes.New(plain)
	for i := range plain {
		plain[i] = 0
	}
	c.decryptedPrivateKeys[idHex] = sb
	return sb, nil
}

// lookupEncryptedKey returns a cached or freshly-loaded EncryptedKey.
func (c *Container) lookupEncryptedKey(keyID []byte) (*cipher.EncryptedKey, bool) {
	if ek, ok := c.encKeyCache[string(keyID)]; ok {
		return ek, true
	}
	if c.loader == nil {
		return nil, false
	}
	ek, ok, err := c.loader.LoadEncryptedKey(keyID)
	if err != nil || !ok {
		return nil, false
	}
	c.encKeyCache[string(keyID)] = ek
	return ek, true
}

func (c *Container) lookupKDFParams(kdfID []byte) (*kdf.Params, bool) {
	if p, ok := c.kdfCache[string(kdfID)]; ok {
		return p, true
	}
	if c.loader == nil {
		return nil, false
	}
	p, ok, err := c.loader.LoadKDFParams(kdfID)
	if err != nil || !ok {
		return nil, false
	}
	c.kdfCache[string(kdfID)] = p
	return p, true
}

// RegisterKDFParams / RegisterEncryptedKey let the wallet seed the cache
// directly (e.g. right after creating a brand-new key) without a round
// trip through the loader.
func (c *Container) RegisterKDFParams(p *kdf.Params) { c.kdfCache[string(p.KdfID)] = p }
func (c *Container) RegisterEncryptedKey(ek *cipher.EncryptedKey) {
	c.encKeyCache[string(ek.ID)] = ek
}

// populateEncryptionKey implements spec.md section 4.C6's
// populateEncryptionKey. candidates maps a key id to the kdf id that
// would derive it from a passphrase, for every id still unresolved.
func (c *Container) populateEncryptionKey(candidates map[string][]byte) error {
	for keyID := range candidates {
		if _, ok := c.decryptedEncryptionKeys[keyID]; ok {
			return nil
		}
	}
	if c.DefaultKeyID != nil {
		if _, ok := candidates[string(c.DefaultKeyID)]; ok {
			c.decryptedEncryptionKeys[string(c.DefaultKeyID)] = secretbytes.New(c.DefaultKey.Bytes())
			return nil
		}
	}

	for keyID := range candidates {
		ek, ok := c.lookupEncryptedKey([]byte(keyID))
		if !ok {
			continue
		}
		for wrapID, cd := range ek.Ciphertexts {
			if err := c.populateEncryptionKey(map[string][]byte{wrapID: cd.Cipher.KdfID}); err != nil {
				if errors.Is(err, errs.ErrPassphraseCancelled) {
					return err
				}
				continue
			}
			wrapKey, ok := c.decryptedEncryptionKeys[wrapID]
			if !ok {
				continue
			}
			plain, err := cd.Cipher.Decrypt(wrapKey.Bytes(), cd.Ciphertext)
			if err != nil {
				continue
			}
			c.decryptedEncryptionKeys[keyID] = secretbytes.New(plain)
			for i := range plain {
				plain[i] = 0
			}
			return nil
		}
	}

	return c.promptForCandidates(candidates)
}

func (c *Container) promptForCandidates(candidates map[string][]byte) error {
	limiterKey := "prompt"
	for id := range candidates {
		limiterKey += ":" + id
	}
	for {
		prompt := c.currentPrompt()
		if prompt == nil {
			return errs.New(errs.Encryption, "populateEncryptionKey", errs.ErrKeyUnavailable)
		}
		if !c.take(limiterKey) {
			return errs.New(errs.Encryption, "populateEncryptionKey", errs.ErrKeyUnavailable)
		}
		ids := make([][]byte, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, []byte(id))
		}
		passphrase, err := prompt(ids)
		if err != nil {
			return errs.New(errs.Encryption, "populateEncryptionKey", err)
		}
		if len(passphrase) == 0 {
			return errs.New(errs.Encryption, "populateEncryptionKey", errs.ErrPassphraseCancelled)
		}

		matched := false
		for keyID, kdfID := range candidates {
			params, ok := c.lookupKDFParams(kdfID)
			if !ok {
				continue
			}
			derived, err := params.Derive(passphrase)
			if err != nil {
				continue
			}
			computed := ComputeKeyID(derived, kdfID)
			if string(computed) == keyID {
				c.decryptedEncryptionKeys[keyID] = secretbytes.New(derived)
				matched = true
			}
			for i := range derived {
				derived[i] = 0
			}
		}
		for i := range passphrase {
			passphrase[i] = 0
		}
		if matched {
			return nil
		}
		// Wrong passphrase: spec.md section 7 — re-invoke the prompt
		// until the user cancels (an empty return, handled above).
	}
}

// EncryptData implements spec.md section 4.C6's encryptData: ensures the
// cipher's wrapping key is available, then encrypts plaintext under it.
// The caller must have cycled cipher's IV via CloneForNewPlaintext first
// if this is a new plaintext sharing a previously-used key.
func (c *Container) EncryptData(tok *LockToken, ciph *cipher.Cipher, plaintext []byte) ([]byte, error) {
	c.metaMu.Lock()
	held := c.holder == tok
	c.metaMu.Unlock()
	if !held {
		return nil, errs.New(errs.Encryption, "EncryptData", errAssetLockNotHeld)
	}
	if err := c.populateEncryptionKey(map[string][]byte{string(ciph.EncryptionKeyID): ciph.KdfID}); err != nil {
		return nil, err
	}
	key, ok := c.decryptedEncryptionKeys[string(ciph.EncryptionKeyID)]
	if !ok {
		return nil, errs.New(errs.Encryption, "EncryptData", errs.ErrKeyUnavailable)
	}
	return ciph.Encrypt(key.Bytes(), plaintext)
}

var errAssetLockNotHeld = lockErr("caller does not hold the container lock")

type lockErr string

func (e lockErr) Error() string { return string(e) }
