package derivation

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
)

// ECDHScheme carries a mutable salt->index map keyed by a per-scheme
// random 8-byte id. Each registered salt gets the next sequential index;
// extension derives that index's key pair via scalar multiplication of
// the root key by the salt. Look-ahead for this scheme is always 1 (a
// salt must be explicitly registered with AddSalt before its index can
// be extended).
type ECDHScheme struct {
	SchemeID  [8]byte
	salts     map[uint32][]byte // index -> salt
	nextIndex uint32
}

// NewECDHScheme builds a scheme with a fresh random scheme id.
func NewECDHScheme() (*ECDHScheme, error) {
	var id [8]byte
	if _, err := rand.Read(id[:]); err != nil {
		return nil, errs.New(errs.Derivation, "NewECDHScheme", err)
	}
	return &ECDHScheme{SchemeID: id, salts: map[uint32][]byte{}}, nil
}

func (s *ECDHScheme) Tag() byte { return TagECDH }

// AddSalt registers salt under the next sequential index and returns it.
func (s *ECDHScheme) AddSalt(salt []byte) uint32 {
	idx := s.nextIndex
	s.salts[idx] = append([]byte{}, salt...)
	s.nextIndex++
	return idx
}

// SaltAt returns the salt registered at idx, if any.
func (s *ECDHScheme) SaltAt(idx uint32) ([]byte, bool) {
	salt, ok := s.salts[idx]
	return salt, ok
}

func (s *ECDHScheme) ExtendPublicChain(rootPub []byte, start, end uint32) ([]KeyPair, error) {
	count, err := rangeOf(start, end)
	if err != nil {
		return nil, err
	}
	rootUncompressed, err := cryptoadapter.PointUncompress(rootPub)
	if err != nil {
		return nil, errs.New(errs.Derivation, "ECDHScheme.ExtendPublicChain", err)
	}
	out := make([]KeyPair, 0, count)
	for i := start; i <= end; i++ {
		salt, ok := s.salts[i]
		if !ok {
			return nil, errs.New(errs.Derivation, "ECDHScheme.ExtendPublicChain", errs.ErrSaltNotRegistered)
		}
		childUncompressed, err := cryptoadapter.ScalarTweakMulPoint(rootUncompressed, salt)
		if err != nil {
			return nil, errs.New(errs.Derivation, "ECDHScheme.ExtendPublicChain", err)
		}
		childCompressed, err := cryptoadapter.PointCompress(childUncompressed)
		if err != nil {
			return nil, errs.New(errs.Derivation, "ECDHScheme.ExtendPublicChain", err)
		}
		out = append(out, KeyPair{Index: i, PubKey: childCompressed})
		if i == end {
			break
		}
	}
	return out, nil
}

func (s *ECDHScheme) ExtendPrivateChain(rootPub, rootPriv []byte, start, end uint32) ([]KeyPair, error) {
	if rootPriv == nil {
		return nil, errs.New(errs.Derivation, "ECDHScheme.ExtendPrivateChain", errs.ErrPrivateKeyMissing)
	}
	count, err := rangeOf(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]KeyPair, 0, count)
	for i := start; i <= end; i++ {
		salt, ok := s.salts[i]
		if !ok {
			return nil, errs.New(errs.Derivation, "ECDHScheme.ExtendPrivateChain", errs.ErrSaltNotRegistered)
		}
		childPriv, err := cryptoadapter.ScalarTweakMulPriv(rootPriv, salt)
		if err != nil {
			return nil, errs.New(errs.Derivation, "ECDHScheme.ExtendPrivateChain", err)
		}
		childPub, err := compressFromPriv(childPriv)
		if err != nil {
			return nil, errs.New(errs.Derivation, "ECDHScheme.ExtendPrivateChain", err)
		}
		out = append(out, KeyPair{Index: i, PubKey: childPub, PrivKey: childPriv})
		if i == end {
			break
		}
	}
	return out, nil
}

// Serialize renders the scheme id plus every (index, salt) pair, for
// persistence under the scheme's dedicated subkey (spec.md section 4.C8).
func (s *ECDHScheme) Serialize() []byte {
	buf := make([]byte, 0, 8+4+len(s.salts)*(4+4+32))
	buf = append(buf, s.SchemeID[:]...)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(s.salts)))
	buf = append(buf, countBuf[:]...)
	for idx, salt := range s.salts {
		var idxBuf, lenBuf [4]byte
		binary.LittleEndian.PutUint32(idxBuf[:], idx)
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(salt)))
		buf = append(buf, idxBuf[:]...)
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, salt...)
	}
	return buf
}

// DeserializeECDHScheme parses bytes produced by Serialize.
func DeserializeECDHScheme(data []byte) (*ECDHScheme, error) {
	if len(data) < 12 {
		return nil, errs.New(errs.Serialization, "DeserializeECDHScheme", errTruncated)
	}
	s := &ECDHScheme{salts: map[uint32][]byte{}}
	copy(s.SchemeID[:], data[:8])
	off := 8
	count := binary.LittleEndian.Uint32(data[off:])
	off += 4
	var maxIdx uint32
	for n := uint32(0); n < count; n++ {
		if len(data) < off+8 {
			return nil, errs.New(errs.Serialization, "DeserializeECDHScheme", errTruncated)
		}
		idx := binary.LittleEndian.Uint32(data[off:])
		off += 4
		saltLen := binary.LittleEndian.Uint32(data[off:])
		off += 4
		if len(data) < off+int(saltLen) {
			return nil, errs.New(errs.Serialization, "DeserializeECDHScheme", errTruncated)
		}
		s.salts[idx] = append([]byte{}, data[off:off+int(saltLen)]...)
		off += int(saltLen)
		if idx+1 > maxIdx {
			maxIdx = idx + 1
		}
	}
	s.nextIndex = maxIdx
	return s, nil
}

const errTruncated = derivationErr("truncated ecdh scheme record")
