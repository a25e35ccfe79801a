package derivation

import (
	"github.com/coredge/hdvault/internal/bip32"
	"github.com/coredge/hdvault/internal/errs"
)

// BIP32Scheme is the plain BIP-32 variant: every child in [start, end] is
// derived directly from the root node (extension operates from the root,
// not from the previous child), and hardened indices are rejected.
type BIP32Scheme struct {
	ChainCode []byte
}

func NewBIP32Scheme(chainCode []byte) *BIP32Scheme { return &BIP32Scheme{ChainCode: chainCode} }

func (s *BIP32Scheme) Tag() byte { return TagBIP32 }

func (s *BIP32Scheme) ExtendPublicChain(rootPub []byte, start, end uint32) ([]KeyPair, error) {
	count, err := rangeOf(start, end)
	if err != nil {
		return nil, err
	}
	root := nodeFromPub(s.ChainCode, rootPub, 0, 0, 0)
	out := make([]KeyPair, 0, count)
	for i := start; i <= end; i++ {
		if bip32.IsHardened(i) {
			return nil, errs.New(errs.Derivation, "BIP32Scheme.ExtendPublicChain", errs.ErrHardenedFromPublic)
		}
		child, err := root.DerivePublic(i)
		if err != nil {
			return nil, errs.New(errs.Derivation, "BIP32Scheme.ExtendPublicChain", err)
		}
		out = append(out, KeyPair{Index: i, PubKey: child.PubKey})
		if i == end {
			break
		}
	}
	return out, nil
}

func (s *BIP32Scheme) ExtendPrivateChain(rootPub, rootPriv []byte, start, end uint32) ([]KeyPair, error) {
	if rootPriv == nil {
		return nil, errs.New(errs.Derivation, "BIP32Scheme.ExtendPrivateChain", errs.ErrPrivateKeyMissing)
	}
	count, err := rangeOf(start, end)
	if err != nil {
		return nil, err
	}
	root := nodeFromPriv(s.ChainCode, rootPriv, rootPub, 0, 0, 0)
	out := make([]KeyPair, 0, count)
	for i := start; i <= end; i++ {
		child, err := root.DerivePrivate(i)
		if err != nil {
			return nil, errs.New(errs.Derivation, "BIP32Scheme.ExtendPrivateChain", err)
		}
		out = append(out, KeyPair{Index: i, PubKey: child.PubKey, PrivKey: child.PrivKey})
		if i == end {
			break
		}
	}
	return out, nil
}
