package derivation

import (
	"github.com/coredge/hdvault/internal/cryptoadapter"
	"github.com/coredge/hdvault/internal/errs"
)

// Armory135Scheme is the classic linear-chain derivation from the
// original Armory wallet: a fixed 32-byte chaincode, mixed with
// hash256(currentPub) via XOR to form the per-step scalar multiplier.
// Unlike the BIP-32 variants, extension operates from the *last known
// asset*, not from a root: each step's multiplier depends on the
// previous step's public key, so start must be the index immediately
// following whatever asset parentPub/parentPriv represents.
type Armory135Scheme struct {
	ChainCode []byte // fixed 32 bytes
}

func NewArmory135Scheme(chainCode []byte) *Armory135Scheme {
	return &Armory135Scheme{ChainCode: chainCode}
}

func (s *Armory135Scheme) Tag() byte { return TagArmory135 }

func (s *Armory135Scheme) chainScalar(pub []byte) []byte {
	h := cryptoadapter.DoubleSHA256(pub)
	out := make([]byte, len(h))
	for i := range h {
		out[i] = h[i] ^ s.ChainCode[i%len(s.ChainCode)]
	}
	return out
}

func (s *Armory135Scheme) ExtendPublicChain(parentPub []byte, start, end uint32) ([]KeyPair, error) {
	count, err := rangeOf(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]KeyPair, 0, count)
	curUncompressed, err := cryptoadapter.PointUncompress(parentPub)
	if err != nil {
		return nil, errs.New(errs.Derivation, "Armory135Scheme.ExtendPublicChain", err)
	}
	curCompressed := parentPub
	for i := start; i <= end; i++ {
		scalar := s.chainScalar(curCompressed)
		nextUncompressed, err := cryptoadapter.ScalarTweakMulPoint(curUncompressed, scalar)
		if err != nil {
			return nil, errs.New(errs.Derivation, "Armory135Scheme.ExtendPublicChain", err)
		}
		nextCompressed, err := cryptoadapter.PointCompress(nextUncompressed)
		if err != nil {
			return nil, errs.New(errs.Derivation, "Armory135Scheme.ExtendPublicChain", err)
		}
		out = append(out, KeyPair{Index: i, PubKey: nextCompressed})
		curUncompressed, curCompressed = nextUncompressed, nextCompressed
		if i == end {
			break
		}
	}
	return out, nil
}

func (s *Armory135Scheme) ExtendPrivateChain(parentPub, parentPriv []byte, start, end uint32) ([]KeyPair, error) {
	if parentPriv == nil {
		return nil, errs.New(errs.Derivation, "Armory135Scheme.ExtendPrivateChain", errs.ErrPrivateKeyMissing)
	}
	count, err := rangeOf(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]KeyPair, 0, count)
	curPriv, curPub := parentPriv, parentPub
	for i := start; i <= end; i++ {
		scalar := s.chainScalar(curPub)
		nextPriv, err := cryptoadapter.ScalarTweakMulPriv(curPriv, scalar)
		if err != nil {
			return nil, errs.New(errs.Derivation, "Armory135Scheme.ExtendPrivateChain", err)
		}
		nextPub, err := compressFromPriv(nextPriv)
		if err != nil {
			return nil, errs.New(errs.Derivation, "Armory135Scheme.ExtendPrivateChain", err)
		}
		out = append(out, KeyPair{Index: i, PubKey: nextPub, PrivKey: nextPriv})
		curPriv, curPub = nextPriv, nextPub
		if i == end {
			break
		}
	}
	return out, nil
}
