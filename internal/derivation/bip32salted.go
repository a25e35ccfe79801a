package derivation

import (
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
)

// BIP32SaltedScheme derives exactly like BIP32Scheme, then multiplies the
// resulting scalar/point by a fixed per-account salt: newPriv = child.priv
// * salt mod n; newPub = salt * child.pub. Every index in the account
// shares the same salt (spec.md section 4.C8).
type BIP32SaltedScheme struct {
	inner *BIP32Scheme
	Salt  []byte // 32-byte scalar
}

func NewBIP32SaltedScheme(chainCode, salt []byte) *BIP32SaltedScheme {
	return &BIP32SaltedScheme{inner: NewBIP32Scheme(chainCode), Salt: salt}
}

func (s *BIP32SaltedScheme) Tag() byte { return TagBIP32Salt }

func (s *BIP32SaltedScheme) ExtendPublicChain(rootPub []byte, start, end uint32) ([]KeyPair, error) {
	children, err := s.inner.ExtendPublicChain(rootPub, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]KeyPair, 0, len(children))
	for _, kp := range children {
		uncompressed, err := cryptoadapter.PointUncompress(kp.PubKey)
		if err != nil {
			return nil, errs.New(errs.Derivation, "BIP32SaltedScheme.ExtendPublicChain", err)
		}
		saltedUncompressed, err := cryptoadapter.ScalarTweakMulPoint(uncompressed, s.Salt)
		if err != nil {
			return nil, errs.New(errs.Derivation, "BIP32SaltedScheme.ExtendPublicChain", err)
		}
		compressed, err := cryptoadapter.PointCompress(saltedUncompressed)
		if err != nil {
			return nil, errs.New(errs.Derivation, "BIP32SaltedScheme.ExtendPublicChain", err)
		}
		out = append(out, KeyPair{Index: kp.Index, PubKey: compressed})
	}
	return out, nil
}

func (s *BIP32SaltedScheme) ExtendPrivateChain(rootPub, rootPriv []byte, start, end uint32) ([]KeyPair, error) {
	children, err := s.inner.ExtendPrivateChain(rootPub, rootPriv, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]KeyPair, 0, len(children))
	for _, kp := range children {
		saltedPriv, err := cryptoadapter.ScalarTweakMulPriv(kp.PrivKey, s.Salt)
		if err != nil {
			return nil, errs.New(errs.Derivation, "BIP32SaltedScheme.ExtendPrivateChain", err)
		}
		saltedPub, err := compressFromPriv(saltedPriv)
		if err != nil {
			return nil, errs.New(errs.Derivation, "BIP32SaltedScheme.ExtendPrivateChain", err)
		}
		out = append(out, KeyPair{Index: kp.Index, PubKey: saltedPub, PrivKey: saltedPriv})
	}
	return out, nil
}
