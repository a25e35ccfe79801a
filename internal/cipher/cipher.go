// Package cipher implements the per-ciphertext metadata object (spec.md
// section 4.C4) and the tagged encrypted-asset containers (section
// 4.C5). It is grounded on the teacher's wallet/storage.go, which pairs
// a single AES key with a freshly generated nonce on every SaveToFile
// call — the same "never reuse an IV" discipline, generalised here to a
// Cipher value that can be cloned for a new plaintext and to multiple
// ciphertexts sharing one logical key (multi-passphrase support).
package cipher

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
)

const ivSize = 16 // AES block size

// Cipher binds a ciphertext to the KDF and encryption key that produced
// it, plus the IV used. AES-CBC is the only cipher kind this module
// emits; Kind is kept for forward on-disk compatibility.
type Cipher struct {
	Kind            string
	KdfID           []byte
	EncryptionKeyID []byte
	IV              []byte
}

// New builds a Cipher with a fresh random IV.
func New(kdfID, encryptionKeyID []byte) (*Cipher, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errs.New(errs.Crypto, "cipher.New", err)
	}
	return &Cipher{Kind: "AES-CBC", KdfID: kdfID, EncryptionKeyID: encryptionKeyID, IV: iv}, nil
}

// CloneForNewPlaintext returns a Cipher with the same key bindings but a
// fresh IV — spec.md section 4.C4: "clones cycle the IV (fresh random
// IV); the same (key, iv) pair is never re-used to encrypt distinct
// plaintexts."
func (c *Cipher) CloneForNewPlaintext() (*Cipher, error) {
	return New(c.KdfID, c.EncryptionKeyID)
}

// Encrypt runs AES-CBC under key (the already-derived wrapping/master
// key, not a passphrase) and this cipher's IV.
func (c *Cipher) Encrypt(key, plaintext []byte) ([]byte, error) {
	return cryptoadapter.AESCBCEncrypt(key, c.IV, plaintext)
}

// Decrypt is the inverse of Encrypt.
func (c *Cipher) Decrypt(key, ciphertext []byte) ([]byte, error) {
	return cryptoadapter.AESCBCDecrypt(key, c.IV, ciphertext)
}

// Serialize renders the cipher as length-prefixed fields:
// kind, kdfId, encryptionKeyId, iv.
func (c *Cipher) Serialize() []byte {
	var buf []byte
	buf = appendLP(buf, []byte(c.Kind))
	buf = appendLP(buf, c.KdfID)
	buf = appendLP(buf, c.EncryptionKeyID)
	buf = appendLP(buf, c.IV)
	return buf
}

// Deserialize parses bytes produced by Serialize.
func Deserialize(data []byte) (*Cipher, int, error) {
	off := 0
	kind, n, err := readLP(data[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	kdfID, n, err := readLP(data[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	encKeyID, n, err := readLP(data[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	iv, n, err := readLP(data[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	return &Cipher{Kind: string(kind), KdfID: kdfID, EncryptionKeyID: encKeyID, IV: iv}, off, nil
}

func appendLP(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func readLP(data []byte) (field []byte, consumed int, err error) {
	if len(data) < 4 {
		return nil, 0, errs.New(errs.Serialization, "cipher.readLP", errTruncated)
	}
	n := binary.LittleEndian.Uint32(data[:4])
	if len(data) < int(4+n) {
		return nil, 0, errs.New(errs.Serialization, "cipher.readLP", errTruncated)
	}
	return append([]byte{}, data[4:4+n]...), int(4 + n), nil
}

type cipherErr string

func (e cipherErr) Error() string { return string(e) }

const errTruncated = cipherErr("truncated record")
