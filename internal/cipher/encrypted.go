package cipher

import (
	"bytes"
	"encoding/binary"

	"github.com/coredge/hdvault/internal/errs"
)

// CipherData pairs a ciphertext with the Cipher metadata that produced
// it — the unit stored on disk for any single encrypted value.
type CipherData struct {
	Ciphertext []byte
	Cipher     *Cipher
}

func (c *CipherData) Serialize() []byte {
	var buf []byte
	buf = appendLP(buf, c.Ciphertext)
	buf = append(buf, c.Cipher.Serialize()...)
	return buf
}

func DeserializeCipherData(data []byte) (*CipherData, int, error) {
	ct, n, err := readLP(data)
	if err != nil {
		return nil, 0, err
	}
	off := n
	c, n2, err := Deserialize(data[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n2
	return &CipherData{Ciphertext: ct, Cipher: c}, off, nil
}

// EncryptedKey is spec.md section 3's "encryption-key table" entry: one
// keyId may carry several ciphertexts of the same master key, each
// wrapped under a different passphrase-derived key (multi-passphrase
// support).
type EncryptedKey struct {
	ID          []byte
	Ciphertexts map[string]*CipherData // keyed by string(encryptionKeyID of the WRAPPING key), raw id bytes
}

// NewEncryptedKey builds an EncryptedKey with a single wrapping ciphertext.
func NewEncryptedKey(id []byte, wrappingKeyID []byte, cd *CipherData) *EncryptedKey {
	return &EncryptedKey{
		ID:          id,
		Ciphertexts: map[string]*CipherData{string(wrappingKeyID): cd},
	}
}

// AddCiphertext appends another wrapping of the same master key under a
// different passphrase, the "append" path of addPassphrase.
func (e *EncryptedKey) AddCiphertext(wrappingKeyID []byte, cd *CipherData) {
	if e.Ciphertexts == nil {
		e.Ciphertexts = map[string]*CipherData{}
	}
	e.Ciphertexts[string(wrappingKeyID)] = cd
}

// RemoveCiphertext deletes a wrapping, used by rotateMasterPassphrase's
// replace=true path.
func (e *EncryptedKey) RemoveCiphertext(wrappingKeyID []byte) {
	delete(e.Ciphertexts, string(wrappingKeyID))
}

// CandidateWrappingKeyIDs returns every wrapping key id this EncryptedKey
// currently has a ciphertext for.
func (e *EncryptedKey) CandidateWrappingKeyIDs() [][]byte {
	out := make([][]byte, 0, len(e.Ciphertexts))
	for k := range e.Ciphertexts {
		out = append(out, []byte(k))
	}
	return out
}

func (e *EncryptedKey) Serialize() []byte {
	var buf []byte
	buf = appendLP(buf, e.ID)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(e.Ciphertexts)))
	buf = append(buf, countBuf[:]...)
	for wrapID, cd := range e.Ciphertexts {
		buf = appendLP(buf, []byte(wrapID))
		cdBytes := cd.Serialize()
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(cdBytes)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, cdBytes...)
	}
	return buf
}

func DeserializeEncryptedKey(data []byte) (*EncryptedKey, error) {
	id, n, err := readLP(data)
	if err != nil {
		return nil, err
	}
	off := n
	if len(data) < off+4 {
		return nil, errs.New(errs.Serialization, "DeserializeEncryptedKey", errTruncated)
	}
	count := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	ek := &EncryptedKey{ID: id, Ciphertexts: map[string]*CipherData{}}
	for i := uint32(0); i < count; i++ {
		wrapID, n, err := readLP(data[off:])
		if err != nil {
			return nil, err
		}
		off += n
		if len(data) < off+4 {
			return nil, errs.New(errs.Serialization, "DeserializeEncryptedKey", errTruncated)
		}
		cdLen := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		cd, _, err := DeserializeCipherData(data[off : off+int(cdLen)])
		if err != nil {
			return nil, err
		}
		off += int(cdLen)
		ek.Ciphertexts[string(wrapID)] = cd
	}
	return ek, nil
}

// PrivateKeyContainer is spec.md section 3's "Private-key container
// (C5)": either unencrypted raw bytes, or a ciphertext bound to a
// Cipher. A watching-only asset has neither (IsPresent() == false).
type PrivateKeyContainer struct {
	Unencrypted bool
	Raw         []byte      // valid iff Unencrypted
	Data        *CipherData // valid iff !Unencrypted
}

// IsPresent reports whether any private material is carried at all.
func (p *PrivateKeyContainer) IsPresent() bool { return p != nil }

func (p *PrivateKeyContainer) Serialize() []byte {
	if p == nil {
		return []byte{0}
	}
	if p.Unencrypted {
		out := []byte{1}
		return append(out, appendLP(nil, p.Raw)...)
	}
	out := []byte{2}
	return append(out, p.Data.Serialize()...)
}

func DeserializePrivateKeyContainer(data []byte) (*PrivateKeyContainer, int, error) {
	if len(data) == 0 {
		return nil, 0, errs.New(errs.Serialization, "DeserializePrivateKeyContainer", errTruncated)
	}
	switch data[0] {
	case 0:
		return nil, 1, nil
	case 1:
		raw, n, err := readLP(data[1:])
		if err != nil {
			return nil, 0, err
		}
		return &PrivateKeyContainer{Unencrypted: true, Raw: raw}, 1 + n, nil
	case 2:
		cd, n, err := DeserializeCipherData(data[1:])
		if err != nil {
			return nil, 0, err
		}
		return &PrivateKeyContainer{Unencrypted: false, Data: cd}, 1 + n, nil
	default:
		return nil, 0, errs.New(errs.Serialization, "DeserializePrivateKeyContainer", errTruncated)
	}
}

// IsSame compares two EncryptedKey values ignoring IVs — spec.md section
// 4.C5's "Equality ignores IVs (compares plaintext-after-decrypt) only
// via an explicit isSame helper used by the on-disk diff path." Callers
// must supply the already-decrypted plaintexts; this helper only
// performs the constant-shape comparison once both sides are decrypted,
// keeping the decrypt call (which needs the decrypted-data container)
// out of this package.
func IsSame(plaintextA, plaintextB []byte) bool {
	return bytes.Equal(plaintextA, plaintextB)
}
